package jobclient

import (
	"context"
	"errors"

	"github.com/parserhub/hub-server-go/internal/model"
)

// ErrJobNotFound means the service explicitly does not know the job id.
// It is the only error the reconciler treats as a confirmed zombie; any
// other failure is ambiguous and must not trigger deletion.
var ErrJobNotFound = errors.New("job not found")

// StartParams carries everything a service needs to start a job. The
// credential paths are cross-process references: the job service opens the
// files directly.
type StartParams struct {
	UserID               int64          `json:"userId"`
	TaskType             string         `json:"taskType,omitempty"`
	SessionPath          string         `json:"sessionPath,omitempty"`
	BlacklistSessionPath string         `json:"blacklistSessionPath,omitempty"`
	NotificationChatID   int64          `json:"notificationChatId,omitempty"`
	Options              map[string]any `json:"options,omitempty"`
}

type JobStatus struct {
	JobID    string         `json:"taskId"`
	Status   string         `json:"status"`
	Progress map[string]any `json:"progress,omitempty"`
}

// Client is the consumed contract of one external job service.
type Client interface {
	Service() model.ServiceName
	Start(ctx context.Context, params StartParams) (jobID string, err error)
	// Stop is best-effort and must be callable for already-finished jobs.
	Stop(ctx context.Context, jobID string) error
	// Status fails with ErrJobNotFound when the service does not know the
	// job, and with a plain error on transient problems.
	Status(ctx context.Context, jobID string) (*JobStatus, error)
}

// Registry maps service names to their clients.
type Registry struct {
	clients map[model.ServiceName]Client
}

func NewRegistry(clients ...Client) *Registry {
	m := make(map[model.ServiceName]Client, len(clients))
	for _, c := range clients {
		m[c.Service()] = c
	}
	return &Registry{clients: m}
}

func (r *Registry) ForService(name model.ServiceName) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}
