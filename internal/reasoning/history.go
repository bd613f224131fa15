package reasoning

import (
	"strings"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// Реплики-заглушки не возвращаем модели: они только сбивают её с толку.
var staleMarkers = []string{"returned no content", "unable to analyze"}

// legacyBotRole: старые записи истории хранили ответы ассистента с ролью "bot".
const legacyBotRole domain.Role = "bot"

// ReplayHistory готовит историю сессии к повторной отправке модели.
func ReplayHistory(history []domain.Turn) []Message {
	out := make([]Message, 0, len(history))
	for _, t := range history {
		if isStale(t.Content) {
			continue
		}
		role := domain.RoleUser
		if t.Role == domain.RoleAssistant || t.Role == legacyBotRole {
			role = domain.RoleAssistant
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	return out
}

func isStale(content string) bool {
	for _, m := range staleMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
