package audit

import "time"

// Исходы шагов аудита
const (
	StatusOK     = "OK"
	StatusAbsent = "ABSENT" // зонд не дал результата, аудит продолжается
	StatusFailed = "FAILED" // ошибка, прервавшая аудит (например, клон репозитория)
	StatusPanic  = "PANIC"
)

// ProbeEvent: запись журнала об одном шаге прогона (зонд или обращение к reasoning).
type ProbeEvent struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id"`
	SessionID  string    `json:"session_id"`
	CallerID   string    `json:"caller_id"`
	Step       string    `json:"step"` // load, browser, repo, verdict, chat
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
