package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/reasoning"
)

type fakeLoad struct {
	calls atomic.Int32
	res   *domain.LoadTestResult
	err   error
	panic bool
	hook  func()
}

func (f *fakeLoad) Run(context.Context, string) (*domain.LoadTestResult, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook()
	}
	if f.panic {
		panic("k6 exploded")
	}
	return f.res, f.err
}

type fakeBrowser struct {
	calls atomic.Int32
	res   *domain.BrowserAuditResult
	err   error
	hook  func()
}

func (f *fakeBrowser) Run(context.Context, string) (*domain.BrowserAuditResult, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook()
	}
	return f.res, f.err
}

type fakeRepo struct {
	calls atomic.Int32
	res   *domain.RepoScanResult
	err   error
	hook  func()
}

func (f *fakeRepo) Scan(context.Context, string) (*domain.RepoScanResult, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook()
	}
	return f.res, f.err
}

type memRecorder struct {
	mu     sync.Mutex
	events []audit.ProbeEvent
}

func (r *memRecorder) Record(e audit.ProbeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *memRecorder) byStep() map[string]audit.ProbeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]audit.ProbeEvent, len(r.events))
	for _, e := range r.events {
		out[e.Step] = e
	}
	return out
}

type reasonerCall struct {
	persona reasoning.Persona
	turns   []reasoning.Message
}

type fakeReasoner struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []reasonerCall
}

func (f *fakeReasoner) Complete(_ context.Context, p reasoning.Persona, turns []reasoning.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reasonerCall{persona: p, turns: turns})
	return f.reply, f.err
}

type denyLedger struct{ debits atomic.Int32 }

func (d *denyLedger) CheckAndDebit(context.Context, string, int64) error {
	d.debits.Add(1)
	return domain.ErrEntitlementDenied
}

func (d *denyLedger) RecordUsage(context.Context, string) error { return errors.New("unreachable") }
