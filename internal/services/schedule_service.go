package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"propdesk/core/internal/config"
	"propdesk/core/internal/db"
	"propdesk/core/internal/models"
	"propdesk/core/internal/schedule"
	"propdesk/core/internal/utils"
)

// ErrInvalidTransition is returned when a lifecycle change is requested on a
// schedule already in a terminal state (completed or cancelled).
var ErrInvalidTransition = errors.New("invalid schedule status transition")

// CreateScheduleInput carries the generation parameters plus audit identity
// for a new payment schedule. Amounts are integer minor units.
type CreateScheduleInput struct {
	EntityID   string
	EntityType models.EntityType
	PropertyID string

	TotalAmount           int64
	NumberOfInstalments   int
	PaymentCompletionDays int
	StartDate             models.Date

	Description string
	Terms       string

	CreatedBy     utils.SixID
	CreatedByName string
}

// PaymentInput is one payment event against a single instalment.
type PaymentInput struct {
	Amount        int64
	PaymentDate   models.Date
	PaymentMethod string
	ReceiptNumber string
	Notes         string
}

// ScheduleUpdate is a partial update; nil fields are left untouched.
// Instalments, when set, wholesale-replace the existing list.
type ScheduleUpdate struct {
	Description *string
	Terms       *string
	Status      *models.ScheduleStatus
	Instalments *[]models.Instalment
}

// IScheduleService defines the operations of the payment schedule engine over
// the record store. Every mutation funnels through the pure recompute in the
// schedule package before persisting, and is guarded by an optimistic version
// check retried on conflict.
type IScheduleService interface {
	CreateSchedule(ctx context.Context, input CreateScheduleInput) (*models.PaymentSchedule, error)
	FindScheduleByID(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error)
	FindSchedulesByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.PaymentSchedule, error)
	FindActiveScheduleForEntity(ctx context.Context, entityType models.EntityType, entityID string) (*models.PaymentSchedule, error)
	FindSchedulesByProperty(ctx context.Context, propertyID string) ([]models.PaymentSchedule, error)
	GetInstalments(ctx context.Context, scheduleID utils.SixID) ([]models.Instalment, error)
	GetStatistics(ctx context.Context, scheduleID utils.SixID) (*models.ScheduleStatistics, error)

	RecordPayment(ctx context.Context, scheduleID, instalmentID utils.SixID, input PaymentInput) (*models.PaymentSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID utils.SixID, update ScheduleUpdate) (*models.PaymentSchedule, error)
	ActivateSchedule(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error)
	CancelSchedule(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error)
	DeleteSchedule(ctx context.Context, scheduleID utils.SixID) (bool, error)
	AttachReceipt(ctx context.Context, scheduleID, instalmentID utils.SixID, receiptKey string) (*models.PaymentSchedule, error)

	// Background-task support.
	RefreshDerivedState(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error)
	FindActiveWithInstalmentsDueBefore(ctx context.Context, date models.Date) ([]models.PaymentSchedule, error)
	FindActiveWithInstalmentsDueBetween(ctx context.Context, from, to models.Date) ([]models.PaymentSchedule, error)
	MarkInstalmentOverdueNotified(ctx context.Context, scheduleID, instalmentID utils.SixID) error
	MarkInstalmentReminderSent(ctx context.Context, scheduleID, instalmentID utils.SixID) error
}

const schedulesCollection = "payment_schedules"

// unpaidStatuses are the stored instalment statuses that still carry an
// outstanding balance.
var unpaidStatuses = []models.InstalmentStatus{
	models.InstalmentPending, models.InstalmentPartial, models.InstalmentOverdue,
}

// scheduleService implements IScheduleService.
type scheduleService struct {
	db  *mongo.Database
	cfg *config.Config
	rdb *redis.Client // optional statistics cache; nil disables caching
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(db *mongo.Database, cfg *config.Config, rdb *redis.Client) IScheduleService {
	return &scheduleService{db: db, cfg: cfg, rdb: rdb}
}

// CreateSchedule generates the instalment plan, computes initial aggregates
// and persists the schedule in draft state.
func (s *scheduleService) CreateSchedule(ctx context.Context, input CreateScheduleInput) (*models.PaymentSchedule, error) {
	collection := s.db.Collection(schedulesCollection)
	now := time.Now().UTC()

	var newSchedule *models.PaymentSchedule

	operation := func() error {
		instalments, err := schedule.GeneratePlan(schedule.PlanParams{
			TotalAmount:           input.TotalAmount,
			NumberOfInstalments:   input.NumberOfInstalments,
			PaymentCompletionDays: input.PaymentCompletionDays,
			StartDate:             input.StartDate,
		})
		if err != nil {
			return err
		}

		newSchedule = &models.PaymentSchedule{
			ID:                    utils.NewSixID(),
			EntityID:              input.EntityID,
			EntityType:            input.EntityType,
			PropertyID:            input.PropertyID,
			TotalAmount:           input.TotalAmount,
			NumberOfInstalments:   input.NumberOfInstalments,
			PaymentCompletionDays: input.PaymentCompletionDays,
			StartDate:             input.StartDate,
			Instalments:           instalments,
			Status:                models.ScheduleDraft,
			Description:           input.Description,
			Terms:                 input.Terms,
			CreatedBy:             input.CreatedBy,
			CreatedByName:         input.CreatedByName,
			CreatedAt:             now,
			UpdatedAt:             now,
			Version:               1,
		}
		schedule.Recompute(newSchedule, models.Today())

		_, insertErr := collection.InsertOne(ctx, newSchedule)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		if errors.Is(err, schedule.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert new schedule for entity %s/%s: %w",
			input.EntityType, input.EntityID, err)
	}

	return newSchedule, nil
}

// FindScheduleByID fetches one schedule. Absence is signaled with
// mongo.ErrNoDocuments, never invented data.
func (s *scheduleService) FindScheduleByID(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	var sched models.PaymentSchedule
	collection := s.db.Collection(schedulesCollection)

	err := collection.FindOne(ctx, bson.M{"_id": scheduleID}).Decode(&sched)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding schedule by ID %s: %w", scheduleID.String(), err)
	}
	return &sched, nil
}

// FindSchedulesByEntity returns all schedules owned by the given entity,
// oldest first.
func (s *scheduleService) FindSchedulesByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.PaymentSchedule, error) {
	collection := s.db.Collection(schedulesCollection)
	filter := bson.M{"entity_id": entityID, "entity_type": entityType}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules for entity %s/%s: %w", entityType, entityID, err)
	}
	defer cursor.Close(ctx)

	var schedules []models.PaymentSchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, fmt.Errorf("failed to decode schedules for entity %s/%s: %w", entityType, entityID, err)
	}
	return schedules, nil
}

// FindActiveScheduleForEntity returns the single active schedule for an
// entity, or mongo.ErrNoDocuments when none is active.
func (s *scheduleService) FindActiveScheduleForEntity(ctx context.Context, entityType models.EntityType, entityID string) (*models.PaymentSchedule, error) {
	var sched models.PaymentSchedule
	collection := s.db.Collection(schedulesCollection)
	filter := bson.M{
		"entity_id":   entityID,
		"entity_type": entityType,
		"status":      models.ScheduleActive,
	}

	err := collection.FindOne(ctx, filter).Decode(&sched)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding active schedule for entity %s/%s: %w", entityType, entityID, err)
	}
	return &sched, nil
}

// FindSchedulesByProperty is the secondary cross-entity lookup.
func (s *scheduleService) FindSchedulesByProperty(ctx context.Context, propertyID string) ([]models.PaymentSchedule, error) {
	collection := s.db.Collection(schedulesCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := collection.Find(ctx, bson.M{"property_id": propertyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules for property %s: %w", propertyID, err)
	}
	defer cursor.Close(ctx)

	var schedules []models.PaymentSchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, fmt.Errorf("failed to decode schedules for property %s: %w", propertyID, err)
	}
	return schedules, nil
}

// GetInstalments returns the ordered instalment list of one schedule.
func (s *scheduleService) GetInstalments(ctx context.Context, scheduleID utils.SixID) ([]models.Instalment, error) {
	sched, err := s.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return sched.Instalments, nil
}

// GetStatistics derives per-status counts and the next-due instalment,
// cached in Redis for the day when a client is configured.
func (s *scheduleService) GetStatistics(ctx context.Context, scheduleID utils.SixID) (*models.ScheduleStatistics, error) {
	today := models.Today()
	key := s.statsCacheKey(scheduleID, today)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var cached models.ScheduleStatistics
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	sched, err := s.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	stats := schedule.Statistics(sched, today)

	if s.rdb != nil {
		if raw, err := json.Marshal(stats); err == nil {
			_ = s.rdb.Set(ctx, key, raw, s.cfg.StatsCacheTTL).Err()
		}
	}
	return &stats, nil
}

// RecordPayment accumulates a payment onto one instalment. PaidAmount is
// additive across calls; the payment metadata is overwritten by the most
// recent call. No upper bound is enforced against the instalment amount:
// over-payment is tolerated (status resolves to paid and the schedule's
// pending total can go negative).
func (s *scheduleService) RecordPayment(ctx context.Context, scheduleID, instalmentID utils.SixID, input PaymentInput) (*models.PaymentSchedule, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %d", schedule.ErrInvalidInput, input.Amount)
	}
	if input.PaymentDate.IsZero() {
		return nil, fmt.Errorf("%w: payment date is required", schedule.ErrInvalidInput)
	}

	return s.mutate(ctx, scheduleID, func(sched *models.PaymentSchedule) error {
		inst := sched.InstalmentByID(instalmentID)
		if inst == nil {
			return mongo.ErrNoDocuments
		}
		inst.PaidAmount += input.Amount
		paidDate := input.PaymentDate
		inst.PaidDate = &paidDate
		inst.PaymentMethod = input.PaymentMethod
		inst.ReceiptNumber = input.ReceiptNumber
		inst.Notes = input.Notes
		return nil
	})
}

// UpdateSchedule applies a partial update and recomputes. Activate and Cancel
// are thin wrappers over this with a status-only update.
func (s *scheduleService) UpdateSchedule(ctx context.Context, scheduleID utils.SixID, update ScheduleUpdate) (*models.PaymentSchedule, error) {
	return s.mutate(ctx, scheduleID, func(sched *models.PaymentSchedule) error {
		if update.Status != nil {
			if sched.IsTerminal() {
				return fmt.Errorf("%w: schedule %s is %s", ErrInvalidTransition, scheduleID.String(), sched.Status)
			}
			sched.Status = *update.Status
		}
		if update.Description != nil {
			sched.Description = *update.Description
		}
		if update.Terms != nil {
			sched.Terms = *update.Terms
		}
		if update.Instalments != nil {
			sched.Instalments = *update.Instalments
		}
		return nil
	})
}

// ActivateSchedule transitions draft -> active.
func (s *scheduleService) ActivateSchedule(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	status := models.ScheduleActive
	return s.UpdateSchedule(ctx, scheduleID, ScheduleUpdate{Status: &status})
}

// CancelSchedule transitions any non-terminal state -> cancelled.
func (s *scheduleService) CancelSchedule(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	status := models.ScheduleCancelled
	return s.UpdateSchedule(ctx, scheduleID, ScheduleUpdate{Status: &status})
}

// DeleteSchedule permanently removes a schedule and its embedded instalments,
// reporting whether a matching record existed.
func (s *scheduleService) DeleteSchedule(ctx context.Context, scheduleID utils.SixID) (bool, error) {
	collection := s.db.Collection(schedulesCollection)
	result, err := collection.DeleteOne(ctx, bson.M{"_id": scheduleID})
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule %s: %w", scheduleID.String(), err)
	}
	s.invalidateStats(ctx, scheduleID)
	return result.DeletedCount > 0, nil
}

// AttachReceipt records the S3 object key of an uploaded receipt document on
// an instalment.
func (s *scheduleService) AttachReceipt(ctx context.Context, scheduleID, instalmentID utils.SixID, receiptKey string) (*models.PaymentSchedule, error) {
	return s.mutate(ctx, scheduleID, func(sched *models.PaymentSchedule) error {
		inst := sched.InstalmentByID(instalmentID)
		if inst == nil {
			return mongo.ErrNoDocuments
		}
		inst.ReceiptKey = receiptKey
		return nil
	})
}

// RefreshDerivedState re-runs the recompute with no other mutation, so that
// persisted derived statuses track calendar rollover (pending -> overdue).
func (s *scheduleService) RefreshDerivedState(ctx context.Context, scheduleID utils.SixID) (*models.PaymentSchedule, error) {
	return s.mutate(ctx, scheduleID, func(*models.PaymentSchedule) error { return nil })
}

// FindActiveWithInstalmentsDueBefore finds active schedules holding at least
// one not-fully-paid instalment due strictly before the given date. Dates are
// stored as YYYY-MM-DD strings, so lexicographic comparison is date order.
func (s *scheduleService) FindActiveWithInstalmentsDueBefore(ctx context.Context, date models.Date) ([]models.PaymentSchedule, error) {
	filter := bson.M{
		"status": models.ScheduleActive,
		"instalments": bson.M{"$elemMatch": bson.M{
			"due_date": bson.M{"$lt": date.String()},
			"status":   bson.M{"$in": unpaidStatuses},
		}},
	}
	return s.findSchedules(ctx, filter)
}

// FindActiveWithInstalmentsDueBetween finds active schedules with an unpaid
// instalment due within [from, to] that has not had a reminder sent yet.
func (s *scheduleService) FindActiveWithInstalmentsDueBetween(ctx context.Context, from, to models.Date) ([]models.PaymentSchedule, error) {
	filter := bson.M{
		"status": models.ScheduleActive,
		"instalments": bson.M{"$elemMatch": bson.M{
			"due_date":         bson.M{"$gte": from.String(), "$lte": to.String()},
			"status":           bson.M{"$in": unpaidStatuses},
			"reminder_sent_at": bson.M{"$exists": false},
		}},
	}
	return s.findSchedules(ctx, filter)
}

// MarkInstalmentOverdueNotified stamps an instalment so the overdue scan does
// not notify twice.
func (s *scheduleService) MarkInstalmentOverdueNotified(ctx context.Context, scheduleID, instalmentID utils.SixID) error {
	_, err := s.mutate(ctx, scheduleID, func(sched *models.PaymentSchedule) error {
		inst := sched.InstalmentByID(instalmentID)
		if inst == nil {
			return mongo.ErrNoDocuments
		}
		now := time.Now().UTC()
		inst.OverdueNotifiedAt = &now
		return nil
	})
	return err
}

// MarkInstalmentReminderSent stamps an instalment so the reminder scan does
// not email twice.
func (s *scheduleService) MarkInstalmentReminderSent(ctx context.Context, scheduleID, instalmentID utils.SixID) error {
	_, err := s.mutate(ctx, scheduleID, func(sched *models.PaymentSchedule) error {
		inst := sched.InstalmentByID(instalmentID)
		if inst == nil {
			return mongo.ErrNoDocuments
		}
		now := time.Now().UTC()
		inst.ReminderSentAt = &now
		return nil
	})
	return err
}

// mutate is the single read-modify-write path for schedule mutations. It
// always recomputes the derived fields before persisting and guards the write
// with an optimistic {_id, version} filter, retrying the whole cycle on
// conflict. Persistence failures are returned to the caller, never swallowed.
func (s *scheduleService) mutate(ctx context.Context, scheduleID utils.SixID, apply func(*models.PaymentSchedule) error) (*models.PaymentSchedule, error) {
	collection := s.db.Collection(schedulesCollection)
	var result *models.PaymentSchedule

	operation := func() error {
		sched, err := s.FindScheduleByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		if err := apply(sched); err != nil {
			return err
		}

		schedule.Recompute(sched, models.Today())
		sched.UpdatedAt = time.Now().UTC()
		readVersion := sched.Version
		sched.Version++

		res, err := collection.ReplaceOne(ctx, bson.M{"_id": scheduleID, "version": readVersion}, sched)
		if err != nil {
			return fmt.Errorf("failed to persist schedule %s: %w", scheduleID.String(), err)
		}
		if res.MatchedCount == 0 {
			// A concurrent writer advanced the version between our read and write.
			return db.ErrVersionConflict
		}
		result = sched
		return nil
	}

	if err := db.TryVersioned(operation); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, scheduleID)
	return result, nil
}

func (s *scheduleService) findSchedules(ctx context.Context, filter bson.M) ([]models.PaymentSchedule, error) {
	collection := s.db.Collection(schedulesCollection)
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var schedules []models.PaymentSchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, fmt.Errorf("failed to decode schedules: %w", err)
	}
	return schedules, nil
}

func (s *scheduleService) statsCacheKey(scheduleID utils.SixID, today models.Date) string {
	return fmt.Sprintf("schedule:stats:%s:%s", scheduleID.String(), today.String())
}

func (s *scheduleService) invalidateStats(ctx context.Context, scheduleID utils.SixID) {
	if s.rdb == nil {
		return
	}
	_ = s.rdb.Del(ctx, s.statsCacheKey(scheduleID, models.Today())).Err()
}
