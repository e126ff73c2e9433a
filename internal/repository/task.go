package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"github.com/parserhub/hub-server-go/internal/database"
	"github.com/parserhub/hub-server-go/internal/model"
)

// ErrRunningExists is returned by Create when the user already has a
// running row; the partial unique index on (user_id) WHERE status =
// 'running' enforces it inside the database.
var ErrRunningExists = errors.New("user already has a running task")

type TaskRepository interface {
	// Create records a new task row. A second running row for the same
	// user fails with ErrRunningExists.
	Create(ctx context.Context, params model.CreateTaskParams) (*model.ActiveTask, error)
	FindByJobID(ctx context.Context, jobID string) (*model.ActiveTask, error)
	// ListByUser returns the user's tasks newest first, optionally
	// restricted to one service.
	ListByUser(ctx context.Context, userID int64, service *model.ServiceName) ([]model.ActiveTask, error)
	UpdateStatus(ctx context.Context, jobID string, status model.TaskStatus) error
	Delete(ctx context.Context, jobID string) error
	// ListRunning returns every running row across all users; startup use.
	ListRunning(ctx context.Context) ([]model.ActiveTask, error)
	// ClearRunning marks every running row stopped; shutdown bookkeeping
	// only, the remote jobs are left alone.
	ClearRunning(ctx context.Context) (int64, error)
}

type taskRepo struct {
	db database.DBTX
}

func NewTaskRepository(db database.DBTX) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) Create(ctx context.Context, params model.CreateTaskParams) (*model.ActiveTask, error) {
	var task model.ActiveTask
	err := r.db.GetContext(ctx, &task, `
		INSERT INTO active_tasks (user_id, job_id, service, task_type, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.UserID, params.JobID, params.Service, params.TaskType, params.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "active_tasks_one_running" {
			return nil, ErrRunningExists
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) FindByJobID(ctx context.Context, jobID string) (*model.ActiveTask, error) {
	var task model.ActiveTask
	err := r.db.GetContext(ctx, &task, `
		SELECT * FROM active_tasks WHERE job_id = $1
	`, jobID)
	return HandleNotFound(&task, err)
}

func (r *taskRepo) ListByUser(ctx context.Context, userID int64, service *model.ServiceName) ([]model.ActiveTask, error) {
	tasks := []model.ActiveTask{}
	if service != nil {
		err := r.db.SelectContext(ctx, &tasks, `
			SELECT * FROM active_tasks
			WHERE user_id = $1 AND service = $2
			ORDER BY created_at DESC
		`, userID, *service)
		return tasks, err
	}
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT * FROM active_tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	return tasks, err
}

func (r *taskRepo) UpdateStatus(ctx context.Context, jobID string, status model.TaskStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE active_tasks SET status = $2 WHERE job_id = $1
	`, jobID, status)
	return err
}

func (r *taskRepo) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM active_tasks WHERE job_id = $1
	`, jobID)
	return err
}

func (r *taskRepo) ListRunning(ctx context.Context) ([]model.ActiveTask, error) {
	tasks := []model.ActiveTask{}
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT * FROM active_tasks WHERE status = 'running' ORDER BY created_at
	`)
	return tasks, err
}

func (r *taskRepo) ClearRunning(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE active_tasks SET status = 'stopped' WHERE status = 'running'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
