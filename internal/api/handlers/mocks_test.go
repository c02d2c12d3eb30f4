package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"propdesk/core/internal/models"
	"propdesk/core/internal/services"
	"propdesk/core/internal/utils"
)

// --- Mocks ---

// MockScheduleService
type MockScheduleService struct {
	mock.Mock
}

func (m *MockScheduleService) CreateSchedule(ctx context.Context, input services.CreateScheduleInput) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) FindScheduleByID(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) FindSchedulesByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.PaymentSchedule, error) {
	args := m.Called(ctx, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) FindActiveScheduleForEntity(ctx context.Context, entityType models.EntityType, entityID string) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) FindSchedulesByProperty(ctx context.Context, propertyID string) ([]models.PaymentSchedule, error) {
	args := m.Called(ctx, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) GetInstalments(ctx context.Context, scheduleID utils.SixID) ([]models.Instalment, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Instalment), args.Error(1)
}

func (m *MockScheduleService) GetStatistics(ctx context.Context, scheduleID utils.SixID) (*models.ScheduleStatistics, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduleStatistics), args.Error(1)
}

func (m *MockScheduleService) RecordPayment(ctx context.Context, scheduleID, instalmentID utils.SixID, input services.PaymentInput) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID, instalmentID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) UpdateSchedule(ctx context.Context, scheduleID utils.SixID, update services.ScheduleUpdate) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) ActivateSchedule(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) CancelSchedule(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) DeleteSchedule(ctx context.Context, scheduleID utils.SixID) (bool, error) {
	args := m.Called(ctx, scheduleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockScheduleService) AttachReceipt(ctx context.Context, scheduleID, instalmentID utils.SixID, receiptKey string) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID, instalmentID, receiptKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) RefreshDerivedState(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) FindActiveWithInstalmentsDueBefore(ctx context.Context, date models.Date) ([]models.PaymentSchedule, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) FindActiveWithInstalmentsDueBetween(ctx context.Context, from, to models.Date) ([]models.PaymentSchedule, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentSchedule), args.Error(1)
}

func (m *MockScheduleService) MarkInstalmentOverdueNotified(ctx context.Context, scheduleID, instalmentID utils.SixID) error {
	args := m.Called(ctx, scheduleID, instalmentID)
	return args.Error(0)
}

func (m *MockScheduleService) MarkInstalmentReminderSent(ctx context.Context, scheduleID, instalmentID utils.SixID) error {
	args := m.Called(ctx, scheduleID, instalmentID)
	return args.Error(0)
}

// MockAgentService
type MockAgentService struct {
	mock.Mock
}

func (m *MockAgentService) CreateAgent(ctx context.Context, name, email, password string, isAdmin bool) (*models.Agent, error) {
	args := m.Called(ctx, name, email, password, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) FindAgentByID(ctx context.Context, agentID utils.SixID) (*models.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) FindAgentByEmail(ctx context.Context, email string) (*models.Agent, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

// MockReceiptStorage
type MockReceiptStorage struct {
	mock.Mock
}

func (m *MockReceiptStorage) GenerateReceiptUploadURL(ctx context.Context, scheduleID, instalmentID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, scheduleID, instalmentID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}
