// Package backup takes scheduled daily-backup snapshots of every protected
// workflow.
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

// DefaultSchedule runs the backup daily at 02:00.
const DefaultSchedule = "0 2 * * *"

// Result counts the outcome of one backup run.
type Result struct {
	Workflows int `json:"workflows"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Job snapshots every live, active workflow from its source.
type Job struct {
	workflows repository.WorkflowStore
	versions  *services.VersionService
	source    services.WorkflowSource
	logger    *logging.Logger
}

// NewJob creates a new Job.
func NewJob(workflows repository.WorkflowStore, versions *services.VersionService, source services.WorkflowSource, logger *logging.Logger) *Job {
	return &Job{workflows: workflows, versions: versions, source: source, logger: logger.Named("backup")}
}

// RunOnce performs a single backup pass. A failing workflow is logged and
// counted; it does not stop the pass. Only listing the workflows or a
// cancelled context fails the run as a whole.
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	var result Result

	workflows, err := j.workflows.ListActiveWorkflows(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list workflows: %w", err)
	}
	result.Workflows = len(workflows)

	for _, w := range workflows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := j.snapshot(ctx, w); err != nil {
			result.Failed++
			j.logger.Error("Backup failed", "workflow_id", w.ID, "source_id", w.SourceID, "error", err)
			continue
		}
		result.Succeeded++
	}

	j.logger.Info("Backup run finished",
		"workflows", result.Workflows,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

func (j *Job) snapshot(ctx context.Context, w *models.Workflow) error {
	definition, err := j.source.FetchWorkflow(ctx, w.PortalID, w.SourceID)
	if err != nil {
		return fmt.Errorf("failed to fetch definition: %w", err)
	}
	_, err = j.versions.CreateVersion(ctx, services.CreateVersionInput{
		WorkflowID:   w.ID,
		SnapshotType: models.SnapshotDailyBackup,
		Actor:        models.SystemActorRef(),
		Data:         definition.Data,
	})
	if apperrors.IsNotFound(err) {
		return fmt.Errorf("workflow deleted during backup: %w", err)
	}
	return err
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	job      *Job
	schedule string
	logger   *logging.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler. The schedule is a standard five-field
// cron expression.
func NewScheduler(job *Job, schedule string, logger *logging.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	return &Scheduler{job: job, schedule: schedule, logger: logger.Named("backup-scheduler")}, nil
}

// Start registers the job and starts the cron loop. Runs stop once ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("backup scheduler already started")
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	))
	s.ctx, s.cancel = context.WithCancel(ctx)

	id, err := c.AddFunc(s.schedule, s.run)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add backup job: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("Backup scheduler started", "schedule", s.schedule, "entry_id", id, "next_run", c.Entry(id).Next)
	return nil
}

func (s *Scheduler) run() {
	if _, err := s.job.RunOnce(s.ctx); err != nil {
		s.logger.Error("Backup run aborted", "error", err)
	}
}

// Stop halts the schedule and waits for a running backup to finish or
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	s.logger.Info("Stopping backup scheduler")

	done := c.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
