package domain

import "time"

// Role: автор реплики в истории диалога.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn: одна реплика в истории сессии.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState: состояние диалога сессии. Терминального состояния нет.
type SessionState string

const (
	SessionCreated SessionState = "CREATED" // вердикт сгенерирован, в истории одна реплика ассистента
	SessionActive  SessionState = "ACTIVE"  // добавлены пары user/assistant
)

// AuditSession: сохраненный снимок одного прогона аудита и его диалога.
type AuditSession struct {
	ID            string              `json:"id"`
	CallerID      string              `json:"callerId"`
	URL           string              `json:"url"`
	TargetURL     string              `json:"targetURL,omitempty"`
	RepositoryURL string              `json:"repositoryURL,omitempty"`
	Metrics       *LoadTestResult     `json:"metrics"`
	Browser       *BrowserAuditResult `json:"browserMetrics"`
	Repo          *RepoScanResult     `json:"github"`
	Insights      BusinessInsights    `json:"businessInsights"`
	Verdict       string              `json:"verdict"`
	History       []Turn              `json:"chatHistory"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// State выводит состояние диалога из длины истории.
func (s *AuditSession) State() SessionState {
	if len(s.History) <= 1 {
		return SessionCreated
	}
	return SessionActive
}
