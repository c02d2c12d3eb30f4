package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"propdesk/core/internal/auth"
	"propdesk/core/internal/db"
	"propdesk/core/internal/models"
	"propdesk/core/internal/utils"
)

// ErrBadCredentials covers both unknown email and wrong password, so the
// login endpoint cannot be used to probe which emails exist.
var ErrBadCredentials = errors.New("invalid email or password")

// ErrAgentExists is returned when creating an agent with a taken email.
var ErrAgentExists = errors.New("an agent with this email already exists")

// IAgentService manages the staff accounts that operate schedules.
type IAgentService interface {
	CreateAgent(ctx context.Context, name, email, password string, isAdmin bool) (*models.Agent, error)
	FindAgentByID(ctx context.Context, agentID utils.SixID) (*models.Agent, error)
	FindAgentByEmail(ctx context.Context, email string) (*models.Agent, error)
	Authenticate(ctx context.Context, email, password string) (*models.Agent, error)
}

const agentsCollection = "agents"

type agentService struct {
	db *mongo.Database
}

// NewAgentService creates a new AgentService.
func NewAgentService(db *mongo.Database) IAgentService {
	return &agentService{db: db}
}

func (s *agentService) CreateAgent(ctx context.Context, name, email, password string, isAdmin bool) (*models.Agent, error) {
	collection := s.db.Collection(agentsCollection)
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	count, err := collection.CountDocuments(ctx, bson.M{"email": email, "deleted": bson.M{"$ne": true}})
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing agent: %w", err)
	}
	if count > 0 {
		return nil, ErrAgentExists
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	operation := func() error {
		agent.GenID()
		_, insertErr := collection.InsertOne(ctx, agent)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert new agent %s: %w", email, err)
	}
	return agent, nil
}

func (s *agentService) FindAgentByID(ctx context.Context, agentID utils.SixID) (*models.Agent, error) {
	var agent models.Agent
	collection := s.db.Collection(agentsCollection)

	err := collection.FindOne(ctx, bson.M{"_id": agentID, "deleted": bson.M{"$ne": true}}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding agent by ID %s: %w", agentID.String(), err)
	}
	return &agent, nil
}

func (s *agentService) FindAgentByEmail(ctx context.Context, email string) (*models.Agent, error) {
	var agent models.Agent
	collection := s.db.Collection(agentsCollection)
	email = strings.ToLower(strings.TrimSpace(email))

	err := collection.FindOne(ctx, bson.M{"email": email, "deleted": bson.M{"$ne": true}}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding agent by email %s: %w", email, err)
	}
	return &agent, nil
}

// Authenticate verifies the credentials of a non-suspended agent.
func (s *agentService) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	agent, err := s.FindAgentByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if agent.Suspended {
		return nil, ErrBadCredentials
	}
	if !auth.CheckPasswordHash(password, agent.PasswordHash) {
		return nil, ErrBadCredentials
	}
	return agent, nil
}
