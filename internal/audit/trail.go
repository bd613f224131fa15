package audit

/*
Trail, асинхронный журнал шагов аудита.

Запись не блокирует прогон: события уходят в буферизованный канал, воркер пишет
их пачками по таймеру (500ms) или по заполнению пачки. Stop закрывает канал и
дожидается финальной записи остатка.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	batchSize     = 100
	flushInterval = 500 * time.Millisecond
)

// Storage: куда физически пишутся события.
type Storage interface {
	WriteEvents(ctx context.Context, events []ProbeEvent) error
}

// Recorder: то, что нужно оркестратору от журнала.
type Recorder interface {
	Record(event ProbeEvent)
}

// FillObserver получает текущую заполненность буфера (метрика backpressure).
type FillObserver func(n int)

type Trail struct {
	ch      chan ProbeEvent
	repo    Storage
	observe FillObserver
	logger  *zap.Logger
	wg      sync.WaitGroup

	// mu: отправка в ch под RLock, close(ch) под Lock
	mu     sync.RWMutex
	closed bool
}

func NewTrail(repo Storage, buffer int, observe FillObserver, logger *zap.Logger) *Trail {
	if buffer <= 0 {
		buffer = 1000
	}
	if observe == nil {
		observe = func(int) {}
	}
	return &Trail{
		ch:      make(chan ProbeEvent, buffer),
		repo:    repo,
		observe: observe,
		logger:  logger.With(zap.String("mod", "trail")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop запирает вход и ждет, пока воркер допишет остаток.
func (t *Trail) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.logger.Info("stopping trail: flushing buffer")
	close(t.ch)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("trail stopped")
}

// Record никогда не блокирует: при переполнении событие сбрасывается с ошибкой в лог.
func (t *Trail) Record(event ProbeEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.logger.Warn("event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case t.ch <- event:
		t.observe(len(t.ch))
	default:
		t.logger.Error("trail_buffer_overflow",
			zap.String("session_id", event.SessionID),
			zap.String("step", event.Step),
			zap.String("status", event.Status))
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]ProbeEvent, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст запроса к этому моменту уже завершен
		if err := t.repo.WriteEvents(context.Background(), batch); err != nil {
			t.logger.Error("trail flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		t.observe(len(t.ch))
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
