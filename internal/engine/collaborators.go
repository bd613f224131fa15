package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/reasoning"
)

// SessionStore: персистентность снимков аудита и истории чата.
type SessionStore interface {
	Create(ctx context.Context, s *domain.AuditSession) error
	// Get возвращает ErrSessionNotFound для неизвестного id.
	Get(ctx context.Context, id string) (*domain.AuditSession, error)
	// AppendTurns дописывает реплики в конец истории.
	AppendTurns(ctx context.Context, id string, turns ...domain.Turn) error
}

// LatestIndex: указатель «последняя сессия вызывающего».
type LatestIndex interface {
	SetLatest(ctx context.Context, callerID, sessionID string) error
	// Latest возвращает ErrSessionNotFound, если указателя нет.
	Latest(ctx context.Context, callerID string) (string, error)
}

// SessionLocker обеспечивает одного писателя на сессию. Занятая сессия, ErrSessionBusy.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// Entitlements: внешний учет кредитов. Отказ, ErrEntitlementDenied.
type Entitlements interface {
	CheckAndDebit(ctx context.Context, accountID string, cost int64) error
	RecordUsage(ctx context.Context, accountID string) error
}

// Reasoner: контракт шлюза к reasoning-сервису.
type Reasoner interface {
	Complete(ctx context.Context, persona reasoning.Persona, turns []reasoning.Message) (string, error)
}

// AllowAll: учет кредитов выключен.
type AllowAll struct{}

func (AllowAll) CheckAndDebit(context.Context, string, int64) error { return nil }
func (AllowAll) RecordUsage(context.Context, string) error          { return nil }

// MemoryLocker: блокировка в пределах одного процесса (CLI, тесты, single-node).
type MemoryLocker struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{busy: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(_ context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[sessionID]; ok {
		return nil, domain.ErrSessionBusy
	}
	l.busy[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.busy, sessionID)
			l.mu.Unlock()
		})
	}, nil
}

// MemoryStore: SessionStore и LatestIndex в памяти процесса. Для одноразовых прогонов из CLI.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.AuditSession
	latest   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.AuditSession),
		latest:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *domain.AuditSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.AuditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) AppendTurns(_ context.Context, id string, turns ...domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	s.History = append(s.History, turns...)
	return nil
}

func (m *MemoryStore) SetLatest(_ context.Context, callerID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[callerID] = sessionID
	return nil
}

func (m *MemoryStore) Latest(_ context.Context, callerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.latest[callerID]
	if !ok {
		return "", fmt.Errorf("no session for caller %s: %w", callerID, domain.ErrSessionNotFound)
	}
	return id, nil
}

// cloneSession: история копируется, чтобы вызывающий не менял хранимый снимок.
func cloneSession(s *domain.AuditSession) *domain.AuditSession {
	cp := *s
	cp.History = append([]domain.Turn(nil), s.History...)
	return &cp
}
