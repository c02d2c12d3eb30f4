package email

import (
	"fmt"
	"strings"

	"propdesk/core/internal/models"
)

// BuildInstalmentReminder composes the subject and raw message for an
// upcoming-instalment reminder.
func BuildInstalmentReminder(from string, to []string, sched *models.PaymentSchedule, inst *models.Instalment) (string, []byte) {
	subject := fmt.Sprintf("Payment Reminder: instalment %d due %s", inst.Number, inst.DueDate.String())
	body := fmt.Sprintf(
		"Instalment %d of %d for %s %s is due on %s.\r\n\r\n"+
			"Amount due: %s\r\nAlready paid: %s\r\n",
		inst.Number, sched.NumberOfInstalments,
		sched.EntityType, sched.EntityID,
		inst.DueDate.String(),
		FormatAmount(inst.Amount), FormatAmount(inst.PaidAmount),
	)
	return subject, buildRawMessage(from, to, subject, body)
}

// BuildOverdueNotice composes the subject and raw message for an overdue
// instalment notification.
func BuildOverdueNotice(from string, to []string, sched *models.PaymentSchedule, inst *models.Instalment) (string, []byte) {
	subject := fmt.Sprintf("Overdue: instalment %d was due %s", inst.Number, inst.DueDate.String())
	outstanding := inst.Amount - inst.PaidAmount
	body := fmt.Sprintf(
		"Instalment %d of %d for %s %s was due on %s and is not fully paid.\r\n\r\n"+
			"Outstanding amount: %s\r\n",
		inst.Number, sched.NumberOfInstalments,
		sched.EntityType, sched.EntityID,
		inst.DueDate.String(),
		FormatAmount(outstanding),
	)
	return subject, buildRawMessage(from, to, subject, body)
}

// FormatAmount renders integer minor units as a decimal string.
func FormatAmount(minorUnits int64) string {
	sign := ""
	if minorUnits < 0 {
		sign = "-"
		minorUnits = -minorUnits
	}
	return fmt.Sprintf("%s%d.%02d", sign, minorUnits/100, minorUnits%100)
}

// buildRawMessage assembles an RFC 5322 style message with headers.
func buildRawMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
