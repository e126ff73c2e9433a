package model

import "time"

// ActiveTask is one ledger row: a job delegated to an external service.
// JobID is issued by the remote service and is the reconciliation key.
type ActiveTask struct {
	ID        int64       `db:"id" json:"id"`
	UserID    int64       `db:"user_id" json:"userId"`
	JobID     string      `db:"job_id" json:"jobId"`
	Service   ServiceName `db:"service" json:"service"`
	TaskType  *string     `db:"task_type" json:"taskType,omitempty"`
	Status    TaskStatus  `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

type CreateTaskParams struct {
	UserID   int64
	JobID    string
	Service  ServiceName
	TaskType *string
	Status   TaskStatus
}
