package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAuthCodeSent    EventType = "auth_code_sent"
	EventAuthSuccess     EventType = "auth_success"
	EventAuthFailure     EventType = "auth_failure"
	EventAuthCancelled   EventType = "auth_cancelled"
	EventAuthSwept       EventType = "auth_swept"
	EventTaskStarted     EventType = "task_started"
	EventTaskStopped     EventType = "task_stopped"
	EventTaskReconciled  EventType = "task_reconciled"
	EventEntitlementSet  EventType = "entitlement_set"
	EventCooldownTripped EventType = "cooldown_tripped"
)

type Event struct {
	Type    EventType
	UserID  int64
	Kind    string
	Service string
	JobID   string
	Details map[string]interface{}
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "orchestrator").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.UserID != 0 {
		logger = logger.With().Int64("user_id", event.UserID).Logger()
	}
	if event.Kind != "" {
		logger = logger.With().Str("kind", event.Kind).Logger()
	}
	if event.Service != "" {
		logger = logger.With().Str("service", event.Service).Logger()
	}
	if event.JobID != "" {
		logger = logger.With().Str("job_id", event.JobID).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
