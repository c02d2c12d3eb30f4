package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk/core/internal/models"
	"propdesk/core/internal/utils"
)

func mustDate(t *testing.T, s string) models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestGeneratePlan_Conservation(t *testing.T) {
	start := models.NewDate(2024, 1, 1)
	cases := []struct {
		total int64
		n     int
	}{
		{1, 1},
		{100, 7},
		{999, 10},
		{1000000, 3},
		{5, 9},
		{123456789, 13},
	}
	for _, tc := range cases {
		instalments, err := GeneratePlan(PlanParams{
			TotalAmount:           tc.total,
			NumberOfInstalments:   tc.n,
			PaymentCompletionDays: 90,
			StartDate:             start,
		})
		require.NoError(t, err)
		require.Len(t, instalments, tc.n)

		var sum int64
		for _, inst := range instalments {
			sum += inst.Amount
		}
		assert.Equal(t, tc.total, sum, "sum of instalments must equal total for total=%d n=%d", tc.total, tc.n)
	}
}

func TestGeneratePlan_RemainderOnLast(t *testing.T) {
	instalments, err := GeneratePlan(PlanParams{
		TotalAmount:           1000,
		NumberOfInstalments:   7,
		PaymentCompletionDays: 70,
		StartDate:             models.NewDate(2024, 1, 1),
	})
	require.NoError(t, err)

	base := int64(1000 / 7)      // 142
	remainder := int64(1000 % 7) // 6
	for i, inst := range instalments {
		assert.Equal(t, i+1, inst.Number)
		if i == len(instalments)-1 {
			assert.Equal(t, base+remainder, inst.Amount)
		} else {
			assert.Equal(t, base, inst.Amount)
		}
		assert.Equal(t, models.InstalmentPending, inst.Status)
		assert.Zero(t, inst.PaidAmount)
		assert.False(t, inst.ID.IsZero())
	}
}

func TestGeneratePlan_DateSpacing(t *testing.T) {
	start := models.NewDate(2024, 1, 1)
	instalments, err := GeneratePlan(PlanParams{
		TotalAmount:           500,
		NumberOfInstalments:   5,
		PaymentCompletionDays: 100,
		StartDate:             start,
	})
	require.NoError(t, err)

	for i, inst := range instalments {
		assert.True(t, inst.DueDate.Equal(start.AddDays(i*20)),
			"instalment %d due %s, want %s", i+1, inst.DueDate, start.AddDays(i*20))
	}
}

func TestGeneratePlan_ZeroSpacingSharesDueDates(t *testing.T) {
	start := models.NewDate(2024, 6, 15)
	instalments, err := GeneratePlan(PlanParams{
		TotalAmount:           300,
		NumberOfInstalments:   4,
		PaymentCompletionDays: 3, // < n, so daysBetween floors to 0
		StartDate:             start,
	})
	require.NoError(t, err)

	for _, inst := range instalments {
		assert.True(t, inst.DueDate.Equal(start))
	}
}

func TestGeneratePlan_MillionOverThree(t *testing.T) {
	instalments, err := GeneratePlan(PlanParams{
		TotalAmount:           1000000,
		NumberOfInstalments:   3,
		PaymentCompletionDays: 90,
		StartDate:             mustDate(t, "2024-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, instalments, 3)

	assert.Equal(t, int64(333333), instalments[0].Amount)
	assert.Equal(t, int64(333333), instalments[1].Amount)
	assert.Equal(t, int64(333334), instalments[2].Amount)

	assert.Equal(t, "2024-01-01", instalments[0].DueDate.String())
	assert.Equal(t, "2024-01-31", instalments[1].DueDate.String())
	assert.Equal(t, "2024-03-01", instalments[2].DueDate.String())
}

func TestGeneratePlan_HundredOverSeven(t *testing.T) {
	instalments, err := GeneratePlan(PlanParams{
		TotalAmount:           100,
		NumberOfInstalments:   7,
		PaymentCompletionDays: 10,
		StartDate:             mustDate(t, "2024-01-01"),
	})
	require.NoError(t, err)

	want := []int64{14, 14, 14, 14, 14, 14, 16}
	for i, inst := range instalments {
		assert.Equal(t, want[i], inst.Amount, "instalment %d", i+1)
		// daysBetween = floor(10/7) = 1
		assert.Equal(t, mustDate(t, "2024-01-01").AddDays(i).String(), inst.DueDate.String())
	}
}

func TestGeneratePlan_Validation(t *testing.T) {
	start := models.NewDate(2024, 1, 1)
	cases := []struct {
		name   string
		params PlanParams
	}{
		{"zero total", PlanParams{TotalAmount: 0, NumberOfInstalments: 3, StartDate: start}},
		{"negative total", PlanParams{TotalAmount: -5, NumberOfInstalments: 3, StartDate: start}},
		{"zero instalments", PlanParams{TotalAmount: 100, NumberOfInstalments: 0, StartDate: start}},
		{"negative days", PlanParams{TotalAmount: 100, NumberOfInstalments: 2, PaymentCompletionDays: -1, StartDate: start}},
		{"missing start date", PlanParams{TotalAmount: 100, NumberOfInstalments: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GeneratePlan(tc.params)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestDeriveInstalmentStatus_DominanceOrder(t *testing.T) {
	today := models.NewDate(2024, 6, 1)
	past := models.NewDate(2024, 5, 1)
	future := models.NewDate(2024, 7, 1)

	cases := []struct {
		name string
		inst models.Instalment
		want models.InstalmentStatus
	}{
		{"unpaid, due in future", models.Instalment{Amount: 100, DueDate: future}, models.InstalmentPending},
		{"unpaid, due today", models.Instalment{Amount: 100, DueDate: today}, models.InstalmentPending},
		{"unpaid, past due", models.Instalment{Amount: 100, DueDate: past}, models.InstalmentOverdue},
		{"partial, due in future", models.Instalment{Amount: 100, PaidAmount: 40, DueDate: future}, models.InstalmentPartial},
		{"partial never degrades to overdue", models.Instalment{Amount: 100, PaidAmount: 40, DueDate: past}, models.InstalmentPartial},
		{"paid exactly", models.Instalment{Amount: 100, PaidAmount: 100, DueDate: future}, models.InstalmentPaid},
		{"paid dominates overdue", models.Instalment{Amount: 100, PaidAmount: 100, DueDate: past}, models.InstalmentPaid},
		{"over-paid", models.Instalment{Amount: 100, PaidAmount: 150, DueDate: past}, models.InstalmentPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveInstalmentStatus(tc.inst, today))
		})
	}
}

func newTestSchedule(t *testing.T) *models.PaymentSchedule {
	t.Helper()
	instalments, err := GeneratePlan(PlanParams{
		TotalAmount:           1000000,
		NumberOfInstalments:   3,
		PaymentCompletionDays: 90,
		StartDate:             mustDate(t, "2024-01-01"),
	})
	require.NoError(t, err)
	return &models.PaymentSchedule{
		ID:                    utils.NewSixID(),
		EntityID:              "sale-42",
		EntityType:            models.EntitySaleCycle,
		TotalAmount:           1000000,
		NumberOfInstalments:   3,
		PaymentCompletionDays: 90,
		StartDate:             mustDate(t, "2024-01-01"),
		Instalments:           instalments,
		Status:                models.ScheduleDraft,
	}
}

func TestRecompute_Aggregates(t *testing.T) {
	s := newTestSchedule(t)
	today := mustDate(t, "2024-01-15")

	Recompute(s, today)
	assert.Equal(t, int64(0), s.TotalPaid)
	assert.Equal(t, int64(1000000), s.TotalPending)
	assert.Equal(t, 0, s.PercentageComplete)
	assert.Equal(t, models.InstalmentOverdue, s.Instalments[0].Status) // due 2024-01-01
	assert.Equal(t, models.InstalmentPending, s.Instalments[1].Status)

	s.Instalments[0].PaidAmount = 333333
	Recompute(s, today)
	assert.Equal(t, int64(333333), s.TotalPaid)
	assert.Equal(t, int64(666667), s.TotalPending)
	assert.Equal(t, 33, s.PercentageComplete)
	assert.Equal(t, models.InstalmentPaid, s.Instalments[0].Status)
}

func TestRecompute_Idempotent(t *testing.T) {
	s := newTestSchedule(t)
	s.Status = models.ScheduleActive
	s.Instalments[0].PaidAmount = 333333
	s.Instalments[1].PaidAmount = 100
	today := mustDate(t, "2024-02-15")

	Recompute(s, today)
	first := *s
	firstInstalments := append([]models.Instalment(nil), s.Instalments...)

	Recompute(s, today)
	assert.Equal(t, first.TotalPaid, s.TotalPaid)
	assert.Equal(t, first.TotalPending, s.TotalPending)
	assert.Equal(t, first.PercentageComplete, s.PercentageComplete)
	assert.Equal(t, first.Status, s.Status)
	assert.Equal(t, firstInstalments, s.Instalments)
}

func TestRecompute_AutoCompletion(t *testing.T) {
	s := newTestSchedule(t)
	s.Status = models.ScheduleActive
	for i := range s.Instalments {
		s.Instalments[i].PaidAmount = s.Instalments[i].Amount
	}

	Recompute(s, mustDate(t, "2024-04-01"))
	assert.Equal(t, 100, s.PercentageComplete)
	assert.Equal(t, models.ScheduleCompleted, s.Status)
}

func TestRecompute_DraftNeverAutoCompletes(t *testing.T) {
	s := newTestSchedule(t)
	// Status stays draft
	for i := range s.Instalments {
		s.Instalments[i].PaidAmount = s.Instalments[i].Amount
	}

	Recompute(s, mustDate(t, "2024-04-01"))
	assert.Equal(t, 100, s.PercentageComplete)
	assert.Equal(t, models.ScheduleDraft, s.Status)
}

func TestRecompute_OverPaymentTolerated(t *testing.T) {
	s := newTestSchedule(t)
	s.Status = models.ScheduleActive
	s.Instalments[0].PaidAmount = 2000000 // well past the full total

	Recompute(s, mustDate(t, "2024-01-15"))
	assert.Equal(t, models.InstalmentPaid, s.Instalments[0].Status)
	assert.Equal(t, int64(-1000000), s.TotalPending)
	assert.GreaterOrEqual(t, s.PercentageComplete, 100)
	assert.Equal(t, models.ScheduleCompleted, s.Status)
}

func TestRecompute_PercentageRounds(t *testing.T) {
	s := newTestSchedule(t)
	s.Instalments[0].PaidAmount = 5000 // 0.5%

	Recompute(s, mustDate(t, "2024-01-01"))
	assert.Equal(t, 1, s.PercentageComplete) // rounds half up to nearest integer
}

func TestStatistics(t *testing.T) {
	s := newTestSchedule(t)
	today := mustDate(t, "2024-02-15")
	// #1 (due 01-01) paid, #2 (due 01-31) partial, #3 (due 03-01) pending
	s.Instalments[0].PaidAmount = s.Instalments[0].Amount
	s.Instalments[1].PaidAmount = 10

	stats := Statistics(s, today)
	assert.Equal(t, s.ID, stats.ScheduleID)
	assert.Equal(t, 1, stats.Paid)
	assert.Equal(t, 1, stats.Partial)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Overdue)

	require.NotNil(t, stats.NextDueDate)
	assert.Equal(t, "2024-01-31", stats.NextDueDate.String()) // earliest not fully paid
	assert.Equal(t, int64(333333), stats.NextDueAmount)
}

func TestStatistics_AllPaid(t *testing.T) {
	s := newTestSchedule(t)
	for i := range s.Instalments {
		s.Instalments[i].PaidAmount = s.Instalments[i].Amount
	}

	stats := Statistics(s, mustDate(t, "2024-02-15"))
	assert.Equal(t, 3, stats.Paid)
	assert.Nil(t, stats.NextDueDate)
	assert.Zero(t, stats.NextDueAmount)
}

func TestStatistics_CountsOverdue(t *testing.T) {
	s := newTestSchedule(t)
	stats := Statistics(s, mustDate(t, "2024-02-15"))
	assert.Equal(t, 2, stats.Overdue) // due 01-01 and 01-31
	assert.Equal(t, 1, stats.Pending)
	require.NotNil(t, stats.NextDueDate)
	assert.Equal(t, "2024-01-01", stats.NextDueDate.String())
}
