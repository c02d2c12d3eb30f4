package models

import (
	"time"

	"propdesk/core/internal/utils"
)

// EntityType identifies the kind of transaction record a schedule is attached
// to. Values are treated as opaque; no foreign-key validation is done.
type EntityType string

const (
	EntitySaleCycle     EntityType = "sale_cycle"
	EntityPurchaseCycle EntityType = "purchase_cycle"
	EntityRentCycle     EntityType = "rent_cycle"
	EntityDeal          EntityType = "deal"
	EntityRequirement   EntityType = "requirement"
)

// InstalmentStatus is derived on every recompute, never hand-maintained.
type InstalmentStatus string

const (
	InstalmentPending InstalmentStatus = "pending"
	InstalmentPartial InstalmentStatus = "partial"
	InstalmentPaid    InstalmentStatus = "paid"
	InstalmentOverdue InstalmentStatus = "overdue"
)

// ScheduleStatus is the schedule-level lifecycle. The only automatic
// transition is active -> completed; draft -> active and -> cancelled are
// explicit caller actions.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "draft"
	ScheduleActive    ScheduleStatus = "active"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Instalment is one scheduled (or paid) payment within a schedule. Instalments
// are created atomically with their parent schedule and only ever mutated
// (payment recording) or wholesale-replaced afterwards.
//
// All monetary amounts are integer minor units of the schedule's currency.
type Instalment struct {
	ID     utils.SixID `bson:"_id" json:"id"`
	Number int         `bson:"number" json:"instalment_number"`
	Amount int64       `bson:"amount" json:"amount"`
	// DueDate is the calendar date the instalment is due.
	DueDate Date `bson:"due_date" json:"due_date"`
	// PaidAmount accumulates across payments; it may exceed Amount
	// (over-payment is tolerated, see DeriveInstalmentStatus).
	PaidAmount int64 `bson:"paid_amount" json:"paid_amount"`
	// Payment metadata from the most recent recorded payment. Unlike
	// PaidAmount these are overwritten, not accumulated.
	PaidDate      *Date  `bson:"paid_date,omitempty" json:"paid_date,omitempty"`
	PaymentMethod string `bson:"payment_method,omitempty" json:"payment_method,omitempty"`
	ReceiptNumber string `bson:"receipt_number,omitempty" json:"receipt_number,omitempty"`
	// ReceiptKey is the S3 object key of an uploaded receipt document, if any.
	ReceiptKey string `bson:"receipt_key,omitempty" json:"receipt_key,omitempty"`
	Notes      string `bson:"notes,omitempty" json:"notes,omitempty"`

	Status InstalmentStatus `bson:"status" json:"status"`

	// Notification stamps set by background tasks to prevent duplicate emails.
	ReminderSentAt    *time.Time `bson:"reminder_sent_at,omitempty" json:"-"`
	OverdueNotifiedAt *time.Time `bson:"overdue_notified_at,omitempty" json:"-"`
}

// PaymentSchedule is the aggregate multi-instalment payment plan attached to
// one transaction entity. TotalPaid, TotalPending, PercentageComplete and the
// per-instalment statuses are derived fields persisted for read performance;
// every write path funnels through schedule.Recompute so they can never drift.
type PaymentSchedule struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`

	// Owning entity, by reference only.
	EntityID   string     `bson:"entity_id" json:"entity_id"`
	EntityType EntityType `bson:"entity_type" json:"entity_type"`
	// PropertyID is an optional secondary reference for cross-entity lookup.
	PropertyID string `bson:"property_id,omitempty" json:"property_id,omitempty"`

	// Generation parameters, retained for audit/regeneration.
	TotalAmount           int64 `bson:"total_amount" json:"total_amount"`
	NumberOfInstalments   int   `bson:"number_of_instalments" json:"number_of_instalments"`
	PaymentCompletionDays int   `bson:"payment_completion_days" json:"payment_completion_days"`
	StartDate             Date  `bson:"start_date" json:"start_date"`

	// Ordered by Number; ordering is significant and preserved.
	Instalments []Instalment `bson:"instalments" json:"instalments"`

	// Derived aggregates.
	TotalPaid          int64 `bson:"total_paid" json:"total_paid"`
	TotalPending       int64 `bson:"total_pending" json:"total_pending"`
	PercentageComplete int   `bson:"percentage_complete" json:"percentage_complete"`

	Status ScheduleStatus `bson:"status" json:"status"`

	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Terms       string `bson:"terms,omitempty" json:"terms,omitempty"`

	// Audit metadata.
	CreatedBy     utils.SixID `bson:"created_by" json:"created_by"`
	CreatedByName string      `bson:"created_by_name" json:"created_by_name"`
	CreatedAt     time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `bson:"updated_at" json:"updated_at"`

	// Version is an optimistic-concurrency stamp: every persisted mutation
	// must match the version it read, or the write is retried.
	Version int64 `bson:"version" json:"-"`
}

// IsTerminal reports whether the schedule is in a state that admits no
// further lifecycle transitions.
func (s *PaymentSchedule) IsTerminal() bool {
	return s.Status == ScheduleCompleted || s.Status == ScheduleCancelled
}

// InstalmentByID returns a pointer into Instalments, or nil if absent.
func (s *PaymentSchedule) InstalmentByID(id utils.SixID) *Instalment {
	for i := range s.Instalments {
		if s.Instalments[i].ID == id {
			return &s.Instalments[i]
		}
	}
	return nil
}

// ScheduleStatistics is the result of the statistics query: counts per
// instalment status plus the earliest not-fully-paid instalment.
type ScheduleStatistics struct {
	ScheduleID utils.SixID `json:"schedule_id"`
	Pending    int         `json:"pending"`
	Partial    int         `json:"partial"`
	Paid       int         `json:"paid"`
	Overdue    int         `json:"overdue"`

	NextDueDate   *Date `json:"next_due_date,omitempty"`
	NextDueAmount int64 `json:"next_due_amount"`
}
