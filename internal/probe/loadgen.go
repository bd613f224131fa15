package probe

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

//go:embed scripts/load.js
var loadScript []byte

const trendStats = "avg,min,med,max,p(90),p(95),p(99)"

// LoadGenerator прогоняет k6 с фиксированным числом виртуальных пользователей.
type LoadGenerator struct {
	runner   CommandRunner
	binary   string
	vus      int
	duration time.Duration
	workDir  string
	logger   *zap.Logger
}

func NewLoadGenerator(runner CommandRunner, binary string, vus int, duration time.Duration, workDir string, logger *zap.Logger) *LoadGenerator {
	return &LoadGenerator{
		runner:   runner,
		binary:   binary,
		vus:      vus,
		duration: duration,
		workDir:  workDir,
		logger:   logger.Named("probe.load"),
	}
}

// Run возвращает ошибку с ErrProbeUnavailable на любой сбой: цель может быть полностью недоступна.
func (g *LoadGenerator) Run(ctx context.Context, target string) (*domain.LoadTestResult, error) {
	dir, err := os.MkdirTemp(g.workDir, "k6-*")
	if err != nil {
		return nil, fmt.Errorf("%w: load: workdir: %v", domain.ErrProbeUnavailable, err)
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "load.js")
	if err := os.WriteFile(scriptPath, loadScript, 0o600); err != nil {
		return nil, fmt.Errorf("%w: load: script: %v", domain.ErrProbeUnavailable, err)
	}
	summaryPath := filepath.Join(dir, "summary.json")

	cmd := Command{
		Name: g.binary,
		Args: []string{
			"run", "--quiet", "--no-color",
			"-e", "TARGET_URL=" + target,
			"-e", "VUS=" + strconv.Itoa(g.vus),
			"-e", "DURATION=" + g.duration.String(),
			"--summary-export=" + summaryPath,
			"--summary-trend-stats=" + trendStats,
			scriptPath,
		},
		Dir: dir,
	}

	start := time.Now()
	if _, err := g.runner.Run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("%w: load: %v", domain.ErrProbeUnavailable, err)
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load: summary: %v", domain.ErrProbeUnavailable, err)
	}

	raw, err := ParseK6Summary(data)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", domain.ErrProbeUnavailable, err)
	}
	if raw.TotalRequests == 0 {
		return nil, fmt.Errorf("%w: load: no requests recorded", domain.ErrProbeUnavailable)
	}
	raw.VirtualUsers = g.vus
	raw.Duration = g.duration.String()

	res := NormalizeLoadTest(raw)
	g.logger.Info("load test finished",
		zap.String("target", target),
		zap.Int64("requests", res.TotalRequests),
		zap.Float64("p95_ms", res.Latency.P95),
		zap.Duration("took", time.Since(start)))
	return &res, nil
}

// k6Summary: то, что нужно из --summary-export. Остальные поля отбрасываются.
type k6Summary struct {
	Metrics map[string]map[string]json.RawMessage `json:"metrics"`
}

// ParseK6Summary разбирает JSON k6 --summary-export. Задержки k6 пишет в миллисекундах
// и так и передает дальше, без угадывания единиц.
func ParseK6Summary(data []byte) (RawLoadTest, error) {
	var s k6Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return RawLoadTest{}, fmt.Errorf("decode k6 summary: %w", err)
	}
	if s.Metrics == nil {
		return RawLoadTest{}, fmt.Errorf("decode k6 summary: metrics section missing")
	}

	dur := s.Metrics["http_req_duration"]
	reqs := s.Metrics["http_reqs"]

	return RawLoadTest{
		P50:             number(dur, "med"),
		P95:             number(dur, "p(95)"),
		P99:             number(dur, "p(99)"),
		Avg:             number(dur, "avg"),
		Throughput:      number(reqs, "rate"),
		LatencyInMillis: true,
		FailureRate:     number(s.Metrics["http_req_failed"], "value"),
		ServerErrors:    int64(number(s.Metrics["server_errors"], "count")),
		TotalRequests:   int64(number(reqs, "count")),
	}, nil
}

// number читает числовое поле метрики; отсутствующее или нечисловое поле дает 0
func number(m map[string]json.RawMessage, key string) float64 {
	raw, ok := m[key]
	if !ok {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}
