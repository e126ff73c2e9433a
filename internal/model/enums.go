package model

// SessionKind names one of the two independent remote credentials a user
// can hold.
type SessionKind string

const (
	SessionKindParser    SessionKind = "parser"
	SessionKindBlacklist SessionKind = "blacklist"
)

func (k SessionKind) Valid() bool {
	return k == SessionKindParser || k == SessionKindBlacklist
}

// ServiceName identifies an external job service.
type ServiceName string

const (
	ServiceWorkers ServiceName = "workers"
	ServiceRealty  ServiceName = "realty"
)

func (s ServiceName) Valid() bool {
	return s == ServiceWorkers || s == ServiceRealty
}

type TaskStatus string

const (
	// TaskStatusRunning is the only status the ledger actively reasons
	// about; everything else is terminal and eligible for deletion.
	TaskStatusRunning TaskStatus = "running"
	TaskStatusStopped TaskStatus = "stopped"
	TaskStatusError   TaskStatus = "error"
	TaskStatusDone    TaskStatus = "completed"
)

type Plan string

const (
	PlanDay     Plan = "day"
	PlanMonth   Plan = "month"
	PlanQuarter Plan = "quarter"
)

func (p Plan) Valid() bool {
	return p == PlanDay || p == PlanMonth || p == PlanQuarter
}
