package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"propdesk/core/internal/api/handlers"
	"propdesk/core/internal/config"
	"propdesk/core/internal/models"
	"propdesk/core/internal/services"
	"propdesk/core/internal/utils"
)

func newAuthTestRouter(handler *handlers.RestAuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/auth/login", handler.Login)
	r.POST("/v1/admin/agents", handler.CreateAgent)
	return r
}

func authTestConfig() *config.Config {
	return &config.Config{
		JwtSecret:      "test-secret",
		JwtTTL:         time.Hour,
		PasswordRegexp: "^.{8,}$",
	}
}

func TestRestAuthHandler_Login_Success(t *testing.T) {
	mockAgentSvc := new(MockAgentService)
	handler := handlers.NewRestAuthHandler(mockAgentSvc, authTestConfig())
	r := newAuthTestRouter(handler)

	agent := &models.Agent{Name: "Sam", Email: "sam@example.com"}
	agent.SetID(utils.NewSixID())
	mockAgentSvc.On("Authenticate", mock.Anything, "sam@example.com", "s3cret-pass").
		Return(agent, nil)

	body := `{"email": "sam@example.com", "password": "s3cret-pass"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.NotEmpty(t, resp["agent"])
	mockAgentSvc.AssertExpectations(t)
}

func TestRestAuthHandler_Login_BadCredentials(t *testing.T) {
	mockAgentSvc := new(MockAgentService)
	handler := handlers.NewRestAuthHandler(mockAgentSvc, authTestConfig())
	r := newAuthTestRouter(handler)

	mockAgentSvc.On("Authenticate", mock.Anything, "sam@example.com", "wrong").
		Return(nil, services.ErrBadCredentials)

	body := `{"email": "sam@example.com", "password": "wrong"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRestAuthHandler_Login_MalformedBody(t *testing.T) {
	handler := handlers.NewRestAuthHandler(new(MockAgentService), authTestConfig())
	r := newAuthTestRouter(handler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBufferString(`{"email": "not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestAuthHandler_CreateAgent_Success(t *testing.T) {
	mockAgentSvc := new(MockAgentService)
	handler := handlers.NewRestAuthHandler(mockAgentSvc, authTestConfig())
	r := newAuthTestRouter(handler)

	created := &models.Agent{Name: "New Agent", Email: "new@example.com"}
	created.SetID(utils.NewSixID())
	mockAgentSvc.On("CreateAgent", mock.Anything, "New Agent", "new@example.com", "long-enough-pass", false).
		Return(created, nil)

	body := `{"name": "New Agent", "email": "new@example.com", "password": "long-enough-pass"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/agents", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockAgentSvc.AssertExpectations(t)
}

func TestRestAuthHandler_CreateAgent_WeakPassword(t *testing.T) {
	mockAgentSvc := new(MockAgentService)
	handler := handlers.NewRestAuthHandler(mockAgentSvc, authTestConfig())
	r := newAuthTestRouter(handler)

	body := `{"name": "New Agent", "email": "new@example.com", "password": "short"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/agents", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockAgentSvc.AssertNotCalled(t, "CreateAgent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRestAuthHandler_CreateAgent_Duplicate(t *testing.T) {
	mockAgentSvc := new(MockAgentService)
	handler := handlers.NewRestAuthHandler(mockAgentSvc, authTestConfig())
	r := newAuthTestRouter(handler)

	mockAgentSvc.On("CreateAgent", mock.Anything, "Dup", "dup@example.com", "long-enough-pass", false).
		Return(nil, services.ErrAgentExists)

	body := `{"name": "Dup", "email": "dup@example.com", "password": "long-enough-pass"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/agents", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
