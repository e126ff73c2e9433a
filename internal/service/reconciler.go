package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/audit"
	"github.com/parserhub/hub-server-go/internal/jobclient"
	"github.com/parserhub/hub-server-go/internal/repository"
)

// Reconciler runs once at startup, before the listener accepts traffic,
// and purges ledger rows for jobs the services explicitly do not know.
// The bias is deliberate: a row is deleted only on a confirmed not found.
// Transient failures, and services with no client, leave the row in place
// for the next restart to retry.
type Reconciler struct {
	tasks    repository.TaskRepository
	registry *jobclient.Registry
}

func NewReconciler(tasks repository.TaskRepository, registry *jobclient.Registry) *Reconciler {
	return &Reconciler{tasks: tasks, registry: registry}
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked  int
	Removed  int
	Retained int
	Skipped  int
}

// Run is idempotent: a second pass over the same state removes nothing
// more.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	running, err := r.tasks.ListRunning(ctx)
	if err != nil {
		return report, err
	}
	report.Checked = len(running)

	for _, task := range running {
		client, ok := r.registry.ForService(task.Service)
		if !ok {
			log.Warn().Str("jobId", task.JobID).Str("service", string(task.Service)).
				Msg("reconcile: no client for service, row retained")
			report.Skipped++
			continue
		}

		_, err := client.Status(ctx, task.JobID)
		switch {
		case errors.Is(err, jobclient.ErrJobNotFound):
			if delErr := r.tasks.Delete(ctx, task.JobID); delErr != nil {
				log.Error().Err(delErr).Str("jobId", task.JobID).
					Msg("reconcile: failed to delete zombie row")
				report.Retained++
				continue
			}
			log.Info().Str("jobId", task.JobID).Str("service", string(task.Service)).
				Int64("userId", task.UserID).Msg("reconcile: removed zombie row")
			audit.Log(audit.Event{
				Type:    audit.EventTaskReconciled,
				UserID:  task.UserID,
				Service: string(task.Service),
				JobID:   task.JobID,
			})
			report.Removed++

		case err != nil:
			// Ambiguous: the job may well be alive. Keep the row.
			log.Warn().Err(err).Str("jobId", task.JobID).Str("service", string(task.Service)).
				Msg("reconcile: status check failed, row retained")
			report.Retained++

		default:
			report.Retained++
		}
	}

	log.Info().
		Int("checked", report.Checked).
		Int("removed", report.Removed).
		Int("retained", report.Retained).
		Int("skipped", report.Skipped).
		Msg("startup reconciliation complete")

	return report, nil
}
