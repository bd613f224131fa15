package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "prefracta"
)

// Ключи состояния
const (
	// RedisKeyLatestSession: hash callerID -> id последней сессии
	RedisKeyLatestSession = RedisNamespace + ":sessions:latest"
	// RedisKeyCredits: hash callerID -> остаток кредитов
	RedisKeyCredits = RedisNamespace + ":ledger:credits"
	// RedisKeyTotalTests: hash callerID -> всего проведенных аудитов
	RedisKeyTotalTests = RedisNamespace + ":ledger:total_tests"
	// RedisKeySubscriptions: hash callerID -> unix-время окончания подписки
	RedisKeySubscriptions = RedisNamespace + ":ledger:subscriptions"
)

// SessionLockKey: ключ блокировки single-writer для чата по сессии.
func SessionLockKey(sessionID string) string {
	return RedisNamespace + ":lock:session:" + sessionID
}
