package probe

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

const k6SummaryFixture = `{
  "root_group": {"name": "", "path": "", "id": "d41d8cd98f00b204e9800998ecf8427e"},
  "metrics": {
    "http_req_duration": {
      "avg": 412.5, "min": 98.1, "med": 380.2, "max": 2210.7,
      "p(90)": 640.3, "p(95)": 720.9, "p(99)": 1504.4,
      "thresholds": {"p(95)<2000": false}
    },
    "http_reqs": {"count": 1000, "rate": 190.4},
    "http_req_failed": {"passes": 60, "fails": 940, "value": 0.06},
    "server_errors": {"count": 40, "rate": 7.6},
    "vus": {"value": 200, "min": 200, "max": 200}
  }
}`

func TestParseK6Summary(t *testing.T) {
	raw, err := ParseK6Summary([]byte(k6SummaryFixture))
	require.NoError(t, err)

	assert.InDelta(t, 380.2, raw.P50, 1e-9)
	assert.InDelta(t, 720.9, raw.P95, 1e-9)
	assert.True(t, raw.LatencyInMillis)
	assert.InDelta(t, 190.4, raw.Throughput, 1e-9)
	assert.InDelta(t, 0.06, raw.FailureRate, 1e-9)
	assert.Equal(t, int64(40), raw.ServerErrors)
	assert.Equal(t, int64(1000), raw.TotalRequests)

	res := NormalizeLoadTest(raw)
	assert.InDelta(t, 720.9, res.Latency.P95, 1e-9)
	assert.InDelta(t, 412.5, res.Latency.Avg, 1e-9)
	assert.InDelta(t, 0.04, res.ServerErrorRate, 1e-9)
}

func TestParseK6Summary_SlowTargetKeepsMillis(t *testing.T) {
	raw, err := ParseK6Summary([]byte(`{"metrics":{
		"http_req_duration":{"avg":15000,"med":9.5,"p(95)":25000,"p(99)":29000},
		"http_reqs":{"count":40,"rate":1.3}}}`))
	require.NoError(t, err)

	res := NormalizeLoadTest(raw)
	assert.InDelta(t, 15000.0, res.Latency.Avg, 1e-9)
	assert.InDelta(t, 25000.0, res.Latency.P95, 1e-9)
	assert.InDelta(t, 9.5, res.Latency.P50, 1e-9)
}

func TestParseK6Summary_Broken(t *testing.T) {
	_, err := ParseK6Summary([]byte(`{"metrics":`))
	require.Error(t, err)

	_, err = ParseK6Summary([]byte(`{}`))
	require.Error(t, err)
}

func TestLoadGenerator_Run(t *testing.T) {
	t.Run("summary is parsed and normalized", func(t *testing.T) {
		runner := &fakeRunner{fn: func(cmd Command) ([]byte, error) {
			path := flagValue(cmd.Args, "--summary-export")
			return nil, os.WriteFile(path, []byte(k6SummaryFixture), 0o600)
		}}
		gen := NewLoadGenerator(runner, "k6", 200, 5*time.Second, t.TempDir(), zap.NewNop())

		res, err := gen.Run(context.Background(), "https://shop.example.com")
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, 200, res.VirtualUsers)
		assert.Equal(t, "5s", res.Duration)
		assert.InDelta(t, 190.4, res.Throughput, 1e-9)

		require.Len(t, runner.calls, 1)
		assert.Equal(t, "k6", runner.calls[0].Name)
		assert.Contains(t, runner.calls[0].Args, "TARGET_URL=https://shop.example.com")
		assert.Contains(t, runner.calls[0].Args, "VUS=200")
	})

	t.Run("process failure is absent", func(t *testing.T) {
		runner := &fakeRunner{fn: func(Command) ([]byte, error) {
			return nil, errors.New("exit status 107")
		}}
		gen := NewLoadGenerator(runner, "k6", 10, time.Second, t.TempDir(), zap.NewNop())

		res, err := gen.Run(context.Background(), "https://down.example.com")
		assert.Nil(t, res)
		assert.ErrorIs(t, err, domain.ErrProbeUnavailable)
	})

	t.Run("zero requests is absent", func(t *testing.T) {
		runner := &fakeRunner{fn: func(cmd Command) ([]byte, error) {
			path := flagValue(cmd.Args, "--summary-export")
			return nil, os.WriteFile(path, []byte(`{"metrics":{"http_reqs":{"count":0,"rate":0}}}`), 0o600)
		}}
		gen := NewLoadGenerator(runner, "k6", 10, time.Second, t.TempDir(), zap.NewNop())

		res, err := gen.Run(context.Background(), "https://down.example.com")
		assert.Nil(t, res)
		assert.ErrorIs(t, err, domain.ErrProbeUnavailable)
	})

	t.Run("work dir is cleaned up", func(t *testing.T) {
		work := t.TempDir()
		runner := &fakeRunner{fn: func(Command) ([]byte, error) { return nil, errors.New("boom") }}
		gen := NewLoadGenerator(runner, "k6", 10, time.Second, work, zap.NewNop())
		_, _ = gen.Run(context.Background(), "https://x.example.com")

		entries, err := os.ReadDir(work)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
