// Package schedule holds the pure computation core of the payment schedule
// engine: instalment plan generation, status derivation and aggregate
// recomputation. Nothing in this package touches storage, which is what makes
// the invariants (amount conservation, idempotent recompute) directly
// unit-testable.
package schedule

import (
	"errors"
	"fmt"
	"math"

	"propdesk/core/internal/models"
	"propdesk/core/internal/utils"
)

// ErrInvalidInput marks plan parameters that fail precondition checks.
// Callers can match it with errors.Is.
var ErrInvalidInput = errors.New("invalid schedule input")

// PlanParams are the generation parameters for a new instalment plan.
// Amounts are integer minor units.
type PlanParams struct {
	TotalAmount           int64
	NumberOfInstalments   int
	PaymentCompletionDays int
	StartDate             models.Date
}

// Validate rejects parameters that would otherwise produce a division fault
// or a meaningless plan.
func (p PlanParams) Validate() error {
	if p.TotalAmount <= 0 {
		return fmt.Errorf("%w: total amount must be positive, got %d", ErrInvalidInput, p.TotalAmount)
	}
	if p.NumberOfInstalments < 1 {
		return fmt.Errorf("%w: number of instalments must be at least 1, got %d", ErrInvalidInput, p.NumberOfInstalments)
	}
	if p.PaymentCompletionDays < 0 {
		return fmt.Errorf("%w: payment completion days must not be negative, got %d", ErrInvalidInput, p.PaymentCompletionDays)
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	return nil
}

// GeneratePlan produces the initial instalment list for the given parameters.
//
// Amounts use floor division with the full remainder assigned to the LAST
// instalment, so the sum of instalment amounts always equals TotalAmount
// exactly. The last instalment can therefore be up to n-1 units larger than
// the others; this simple tie-break is part of the engine's contract.
//
// Due dates are spaced floor(days/n) apart starting at StartDate. When the
// completion window is shorter than the instalment count the spacing is 0 and
// instalments share due dates; that is accepted behavior, not an error.
func GeneratePlan(p PlanParams) ([]models.Instalment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n := int64(p.NumberOfInstalments)
	baseAmount := p.TotalAmount / n
	remainder := p.TotalAmount - baseAmount*n
	daysBetween := p.PaymentCompletionDays / p.NumberOfInstalments

	instalments := make([]models.Instalment, p.NumberOfInstalments)
	for i := 0; i < p.NumberOfInstalments; i++ {
		amount := baseAmount
		if i == p.NumberOfInstalments-1 {
			amount += remainder
		}
		instalments[i] = models.Instalment{
			ID:         utils.NewSixID(),
			Number:     i + 1,
			Amount:     amount,
			DueDate:    p.StartDate.AddDays(i * daysBetween),
			PaidAmount: 0,
			Status:     models.InstalmentPending,
		}
	}
	return instalments, nil
}

// DeriveInstalmentStatus applies the status table with its exact dominance
// order: paid > partial > overdue > pending. A fully (or over-) paid
// instalment is paid even when its due date has passed, and a partially paid
// instalment never degrades to overdue.
func DeriveInstalmentStatus(inst models.Instalment, today models.Date) models.InstalmentStatus {
	switch {
	case inst.PaidAmount >= inst.Amount && inst.PaidAmount > 0:
		return models.InstalmentPaid
	case inst.PaidAmount > 0:
		return models.InstalmentPartial
	case inst.DueDate.Before(today):
		return models.InstalmentOverdue
	default:
		return models.InstalmentPending
	}
}

// Recompute re-derives every derived field of the schedule from its raw
// instalment list: per-instalment statuses, TotalPaid, TotalPending,
// PercentageComplete, and the single automatic lifecycle transition
// (active -> completed at 100%).
//
// It is deterministic and idempotent: calling it twice with no intervening
// mutation yields an identical schedule. The schedule's own TotalAmount field
// is never touched; the pending calculation sums the instalments themselves.
func Recompute(s *models.PaymentSchedule, today models.Date) {
	var totalPaid, instalmentTotal int64
	for i := range s.Instalments {
		inst := &s.Instalments[i]
		inst.Status = DeriveInstalmentStatus(*inst, today)
		totalPaid += inst.PaidAmount
		instalmentTotal += inst.Amount
	}

	s.TotalPaid = totalPaid
	s.TotalPending = instalmentTotal - totalPaid
	if instalmentTotal > 0 {
		s.PercentageComplete = int(math.Round(float64(totalPaid) / float64(instalmentTotal) * 100))
	} else {
		s.PercentageComplete = 0
	}

	// Over-payment can push the percentage past 100; an active schedule that
	// reaches or passes full payment still completes. Draft or cancelled
	// schedules never auto-complete.
	if s.PercentageComplete >= 100 && s.Status == models.ScheduleActive {
		s.Status = models.ScheduleCompleted
	}
}

// Statistics derives per-status counts plus the next-due instalment (the
// earliest-due instalment that is not fully paid). Statuses are derived
// fresh rather than read from the stored fields so the answer is correct even
// if the schedule has not been recomputed since a date rollover.
func Statistics(s *models.PaymentSchedule, today models.Date) models.ScheduleStatistics {
	stats := models.ScheduleStatistics{ScheduleID: s.ID}

	var next *models.Instalment
	for i := range s.Instalments {
		inst := &s.Instalments[i]
		switch DeriveInstalmentStatus(*inst, today) {
		case models.InstalmentPaid:
			stats.Paid++
			continue
		case models.InstalmentPartial:
			stats.Partial++
		case models.InstalmentOverdue:
			stats.Overdue++
		default:
			stats.Pending++
		}
		if next == nil || inst.DueDate.Before(next.DueDate) {
			next = inst
		}
	}

	if next != nil {
		due := next.DueDate
		stats.NextDueDate = &due
		stats.NextDueAmount = next.Amount
	}
	return stats
}
