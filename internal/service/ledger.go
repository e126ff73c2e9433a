package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/audit"
	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/jobclient"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/repository"
	"github.com/parserhub/hub-server-go/internal/sessionfile"
)

// TaskLedger tracks which remote jobs this server believes are running.
// The ledger row, not the remote service, is the local source of truth for
// the single-flight rule: one running job per user across all services.
type TaskLedger struct {
	tasks        repository.TaskRepository
	registry     *jobclient.Registry
	entitlements *EntitlementService
	files        *sessionfile.Store
}

func NewTaskLedger(tasks repository.TaskRepository, registry *jobclient.Registry, entitlements *EntitlementService, files *sessionfile.Store) *TaskLedger {
	return &TaskLedger{
		tasks:        tasks,
		registry:     registry,
		entitlements: entitlements,
		files:        files,
	}
}

// StartParams is the ledger-level start request; the credential paths are
// derived here, not supplied by the caller.
type StartParams struct {
	Service  model.ServiceName
	TaskType string
	Options  map[string]any
}

// StartTask gates on entitlement, credentials and the single-flight rule,
// then starts the remote job and records it. If recording fails after a
// successful remote start, the job is stopped again best-effort so no
// untracked work is left running.
func (l *TaskLedger) StartTask(ctx context.Context, user *model.User, params StartParams) (*model.ActiveTask, error) {
	client, ok := l.registry.ForService(params.Service)
	if !ok {
		return nil, apperrors.InvalidInput("service", "unknown service")
	}

	active, err := l.entitlements.HasActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperrors.NoEntitlement()
	}

	if !user.Authorized(model.SessionKindParser) {
		return nil, apperrors.Unauthorized("no authorized parser session")
	}

	runningID, err := l.runningJobID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if runningID != "" {
		return nil, apperrors.Conflict(runningID)
	}

	start := jobclient.StartParams{
		UserID:             user.ID,
		TaskType:           params.TaskType,
		SessionPath:        l.files.Path(user.ID, model.SessionKindParser),
		NotificationChatID: user.ID,
		Options:            params.Options,
	}
	if user.Authorized(model.SessionKindBlacklist) {
		start.BlacklistSessionPath = l.files.Path(user.ID, model.SessionKindBlacklist)
	}

	jobID, err := client.Start(ctx, start)
	if err != nil {
		return nil, apperrors.TransientRemote(string(params.Service), err)
	}

	// Re-read the ledger now that the remote round-trip is over: a
	// concurrent start may have recorded a row while this one was waiting
	// on the service. The pre-flight check alone would let both through.
	runningID, err = l.runningJobID(ctx, user.ID)
	if err != nil || runningID != "" {
		l.undoStart(ctx, client, params.Service, jobID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.Conflict(runningID)
	}

	var taskType *string
	if params.TaskType != "" {
		taskType = &params.TaskType
	}
	task, err := l.tasks.Create(ctx, model.CreateTaskParams{
		UserID:   user.ID,
		JobID:    jobID,
		Service:  params.Service,
		TaskType: taskType,
		Status:   model.TaskStatusRunning,
	})
	if err != nil {
		// The job is already running remotely; undo it rather than leave
		// untracked work behind.
		l.undoStart(ctx, client, params.Service, jobID)
		if errors.Is(err, repository.ErrRunningExists) {
			// Lost the race between the re-read and the insert.
			winnerID, lookupErr := l.runningJobID(ctx, user.ID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return nil, apperrors.Conflict(winnerID)
		}
		return nil, apperrors.Database(err)
	}

	audit.Log(audit.Event{
		Type:    audit.EventTaskStarted,
		UserID:  user.ID,
		Service: string(params.Service),
		JobID:   jobID,
	})

	return task, nil
}

// StopTask asks the service to stop the job and removes the ledger row.
// The remote stop is best-effort: a failure there is logged but does not
// keep the row alive, matching the service's own idempotent stop semantics.
func (l *TaskLedger) StopTask(ctx context.Context, userID int64, jobID string) (*model.ActiveTask, error) {
	task, err := l.findOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	if client, ok := l.registry.ForService(task.Service); ok {
		if err := client.Stop(ctx, jobID); err != nil {
			log.Warn().Err(err).Str("jobId", jobID).Str("service", string(task.Service)).
				Msg("remote stop failed, removing ledger row anyway")
		}
	} else {
		log.Warn().Str("jobId", jobID).Str("service", string(task.Service)).
			Msg("no client for service, removing ledger row only")
	}

	if err := l.tasks.Delete(ctx, jobID); err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(audit.Event{
		Type:    audit.EventTaskStopped,
		UserID:  userID,
		Service: string(task.Service),
		JobID:   jobID,
	})

	return task, nil
}

// TaskStatus fetches the live status from the owning service. A job the
// service explicitly does not know is a zombie: its row is deleted on the
// spot and the caller gets not found.
func (l *TaskLedger) TaskStatus(ctx context.Context, userID int64, jobID string) (*jobclient.JobStatus, error) {
	task, err := l.findOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	client, ok := l.registry.ForService(task.Service)
	if !ok {
		return nil, apperrors.Internal("no client for service " + string(task.Service))
	}

	status, err := client.Status(ctx, jobID)
	if errors.Is(err, jobclient.ErrJobNotFound) {
		if delErr := l.tasks.Delete(ctx, jobID); delErr != nil {
			return nil, apperrors.Database(delErr)
		}
		log.Info().Str("jobId", jobID).Str("service", string(task.Service)).
			Msg("job unknown to service, ledger row removed")
		return nil, apperrors.NotFound("task")
	}
	if err != nil {
		return nil, apperrors.TransientRemote(string(task.Service), err)
	}

	// Keep the local row in step with a terminal remote status so a later
	// start is not blocked by a job that already finished.
	remote := model.TaskStatus(status.Status)
	if remote != task.Status && remote != model.TaskStatusRunning {
		if err := l.tasks.UpdateStatus(ctx, jobID, remote); err != nil {
			log.Warn().Err(err).Str("jobId", jobID).Msg("failed to sync task status")
		}
	}

	return status, nil
}

// ListTasks returns the user's ledger rows, optionally for one service.
func (l *TaskLedger) ListTasks(ctx context.Context, userID int64, service *model.ServiceName) ([]model.ActiveTask, error) {
	tasks, err := l.tasks.ListByUser(ctx, userID, service)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return tasks, nil
}

// ClearRunning marks every running row stopped; shutdown bookkeeping.
func (l *TaskLedger) ClearRunning(ctx context.Context) (int64, error) {
	return l.tasks.ClearRunning(ctx)
}

// runningJobID returns the job id of the user's running row, or "".
func (l *TaskLedger) runningJobID(ctx context.Context, userID int64) (string, error) {
	existing, err := l.tasks.ListByUser(ctx, userID, nil)
	if err != nil {
		return "", apperrors.Database(err)
	}
	for _, t := range existing {
		if t.Status == model.TaskStatusRunning {
			return t.JobID, nil
		}
	}
	return "", nil
}

// undoStart stops a remotely started job that never made it into the
// ledger, so no untracked work is left running.
func (l *TaskLedger) undoStart(ctx context.Context, client jobclient.Client, service model.ServiceName, jobID string) {
	if err := client.Stop(ctx, jobID); err != nil {
		log.Error().Err(err).Str("jobId", jobID).Str("service", string(service)).
			Msg("failed to stop job after ledger insert failure")
	}
}

func (l *TaskLedger) findOwned(ctx context.Context, userID int64, jobID string) (*model.ActiveTask, error) {
	task, err := l.tasks.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	// Another user's job id looks exactly like a missing one.
	if task == nil || task.UserID != userID {
		return nil, apperrors.NotFound("task")
	}
	return task, nil
}
