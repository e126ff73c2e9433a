package handler

import (
	"net/http"
	"time"

	"github.com/parserhub/hub-server-go/internal/httputil"
	"github.com/parserhub/hub-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTask(task model.ActiveTask) map[string]any {
	out := map[string]any{
		"jobId":     task.JobID,
		"service":   task.Service,
		"status":    task.Status,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
	}
	if task.TaskType != nil {
		out["taskType"] = *task.TaskType
	}
	return out
}

func formatEntitlement(ent *model.Entitlement, now time.Time) map[string]any {
	if ent == nil {
		return map[string]any{"active": false}
	}
	return map[string]any{
		"active":      ent.ActiveAt(now),
		"plan":        ent.Plan,
		"activeUntil": ent.ActiveUntil.Format(time.RFC3339),
	}
}
