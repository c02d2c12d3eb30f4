package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"propdesk/core/internal/config"
	"propdesk/core/internal/email"
	"propdesk/core/internal/models"
	"propdesk/core/internal/services"
)

// Task types processed by the background worker.
const (
	TypeEmailDelivery = "email:deliver"
	TypeOverdueScan   = "schedule:overdue:scan"
	TypeReminderScan  = "schedule:payment:remind"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOptFromClient(rdb))
}

func redisOptFromClient(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Server (Processing tasks) ---

// IAsynqClient defines the interface for the Asynq client methods used by the
// task handlers. This allows easier mocking than the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskProcessor handles the processing of tasks. It holds the dependencies
// needed by the task handlers.
type TaskProcessor struct {
	cfg             *config.Config
	emailSender     email.Sender
	scheduleService services.IScheduleService
	agentService    services.IAgentService
	taskClient      IAsynqClient
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	scheduleService services.IScheduleService,
	agentService services.IAgentService,
	taskClient IAsynqClient,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		emailSender:     emailSender,
		scheduleService: scheduleService,
		agentService:    agentService,
		taskClient:      taskClient,
	}
}

// SetupServer configures an Asynq server and the mux with all task handlers
// registered. The caller runs srv.Run(mux) in its own goroutine.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOptFromClient(rdb),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeOverdueScan, processor.HandleOverdueScanTask)
	mux.HandleFunc(TypeReminderScan, processor.HandleReminderScanTask)
	fmt.Println("Registered background task handlers.")

	return srv, mux
}

// SetupScheduler registers the periodic schedule scans. Intervals come from
// config so deployments can tune scan frequency without code changes.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOptFromClient(rdb), &asynq.SchedulerOpts{Location: time.UTC})

	entries := []struct {
		every time.Duration
		task  *asynq.Task
	}{
		{cfg.OverdueScanEvery, asynq.NewTask(TypeOverdueScan, nil)},
		{cfg.ReminderScanEvery, asynq.NewTask(TypeReminderScan, nil)},
	}
	for _, entry := range entries {
		spec := fmt.Sprintf("@every %s", entry.every)
		if _, err := scheduler.Register(spec, entry.task); err != nil {
			return nil, fmt.Errorf("failed to register periodic task %s: %w", entry.task.Type(), err)
		}
	}
	return scheduler, nil
}

// --- Task Handlers ---

// EmailTaskPayload carries one fully composed email.
type EmailTaskPayload struct {
	To         []string `json:"to"`
	Subject    string   `json:"subject"`
	RawMessage []byte   `json:"raw_message"`
}

// HandleEmailDeliveryTask processes email delivery tasks.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.To) == 0 {
		return fmt.Errorf("email task has no recipients: %w", asynq.SkipRetry)
	}

	fmt.Printf("Sending email task: To=%v, Subject=%s\n", payload.To, payload.Subject)
	if err := p.emailSender.Send(ctx, payload.To, payload.Subject, payload.RawMessage); err != nil {
		return fmt.Errorf("failed to send email to %v: %w", payload.To, err)
	}
	return nil
}

// HandleOverdueScanTask refreshes derived statuses on active schedules with
// past-due unpaid instalments and emails the schedule owner once per
// instalment that newly turned overdue.
func (p *TaskProcessor) HandleOverdueScanTask(ctx context.Context, t *asynq.Task) error {
	today := models.Today()
	schedules, err := p.scheduleService.FindActiveWithInstalmentsDueBefore(ctx, today)
	if err != nil {
		return fmt.Errorf("overdue scan query failed: %w", err)
	}
	log.Printf("Overdue scan: %d active schedule(s) with past-due instalments", len(schedules))

	for i := range schedules {
		sched, err := p.scheduleService.RefreshDerivedState(ctx, schedules[i].ID)
		if err != nil {
			log.Printf("Overdue scan: failed to refresh schedule %s: %v", schedules[i].ID.String(), err)
			continue
		}

		recipient, err := p.ownerEmail(ctx, sched)
		if err != nil {
			log.Printf("Overdue scan: no recipient for schedule %s: %v", sched.ID.String(), err)
			continue
		}

		for j := range sched.Instalments {
			inst := &sched.Instalments[j]
			if inst.Status != models.InstalmentOverdue || inst.OverdueNotifiedAt != nil {
				continue
			}
			subject, raw := email.BuildOverdueNotice(p.cfg.SmtpFromAddress, []string{recipient}, sched, inst)
			if err := p.enqueueEmail(ctx, []string{recipient}, subject, raw); err != nil {
				log.Printf("Overdue scan: failed to enqueue email for schedule %s: %v", sched.ID.String(), err)
				continue
			}
			if err := p.scheduleService.MarkInstalmentOverdueNotified(ctx, sched.ID, inst.ID); err != nil {
				log.Printf("Overdue scan: failed to stamp instalment %s: %v", inst.ID.String(), err)
			}
		}
	}
	return nil
}

// HandleReminderScanTask emails the schedule owner about unpaid instalments
// falling due within the configured reminder window, once per instalment.
func (p *TaskProcessor) HandleReminderScanTask(ctx context.Context, t *asynq.Task) error {
	today := models.Today()
	windowEnd := today.AddDays(p.cfg.ReminderWindowDays)
	schedules, err := p.scheduleService.FindActiveWithInstalmentsDueBetween(ctx, today, windowEnd)
	if err != nil {
		return fmt.Errorf("reminder scan query failed: %w", err)
	}
	log.Printf("Reminder scan: %d active schedule(s) with instalments due by %s", len(schedules), windowEnd.String())

	for i := range schedules {
		sched := &schedules[i]
		recipient, err := p.ownerEmail(ctx, sched)
		if err != nil {
			log.Printf("Reminder scan: no recipient for schedule %s: %v", sched.ID.String(), err)
			continue
		}

		for j := range sched.Instalments {
			inst := &sched.Instalments[j]
			if inst.ReminderSentAt != nil || inst.PaidAmount >= inst.Amount {
				continue
			}
			if inst.DueDate.Before(today) || inst.DueDate.After(windowEnd) {
				continue
			}
			subject, raw := email.BuildInstalmentReminder(p.cfg.SmtpFromAddress, []string{recipient}, sched, inst)
			if err := p.enqueueEmail(ctx, []string{recipient}, subject, raw); err != nil {
				log.Printf("Reminder scan: failed to enqueue email for schedule %s: %v", sched.ID.String(), err)
				continue
			}
			if err := p.scheduleService.MarkInstalmentReminderSent(ctx, sched.ID, inst.ID); err != nil {
				log.Printf("Reminder scan: failed to stamp instalment %s: %v", inst.ID.String(), err)
			}
		}
	}
	return nil
}

// ownerEmail resolves the notification recipient: the agent who created the
// schedule.
func (p *TaskProcessor) ownerEmail(ctx context.Context, sched *models.PaymentSchedule) (string, error) {
	agent, err := p.agentService.FindAgentByID(ctx, sched.CreatedBy)
	if err != nil {
		return "", err
	}
	return agent.Email, nil
}

func (p *TaskProcessor) enqueueEmail(ctx context.Context, to []string, subject string, raw []byte) error {
	payload, err := json.Marshal(EmailTaskPayload{To: to, Subject: subject, RawMessage: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}
	_, err = p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, payload), asynq.Queue("default"))
	return err
}
