package handlers

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"propdesk/core/internal/auth"
	"propdesk/core/internal/config"
	"propdesk/core/internal/services"
)

// RestAuthHandler handles agent login and admin account management.
type RestAuthHandler struct {
	agentService services.IAgentService
	cfg          *config.Config
}

// NewRestAuthHandler creates a new RestAuthHandler.
func NewRestAuthHandler(agentService services.IAgentService, cfg *config.Config) *RestAuthHandler {
	return &RestAuthHandler{agentService: agentService, cfg: cfg}
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/auth/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	agent, err := h.agentService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		}
		return
	}

	token, err := auth.GenerateJWT(agent.ID, agent.IsAdmin, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"agent": agent,
	})
}

// CreateAgentRequest is the body of POST /v1/admin/agents.
type CreateAgentRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateAgent handles POST /v1/admin/agents (admin only).
func (h *RestAuthHandler) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if matched, err := regexp.MatchString(h.cfg.PasswordRegexp, req.Password); err != nil || !matched {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet the complexity requirements"})
		return
	}

	agent, err := h.agentService.CreateAgent(c.Request.Context(), req.Name, req.Email, req.Password, req.IsAdmin)
	if err != nil {
		if errors.Is(err, services.ErrAgentExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "An agent with this email already exists"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create agent"})
		}
		return
	}

	c.JSON(http.StatusCreated, agent)
}
