// Package impact переводит технические метрики аудита в синтетические бизнес-оценки.
package impact

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

// Категории рекомендаций в порядке проверки порогов.
var (
	latencyPhrases = []string{
		"FORCE Edge Acceleration",
		"Optimize Global CDN Path",
		"Deploy Regional Latency Shields",
	}
	throughputPhrases = []string{
		"Activate High-Throughput Redis",
		"Scale Compute Partitioning",
		"Enable Burst-Mode Capacity",
	}
	errorPhrases = []string{
		"Auto-Scale Infrastructure",
		"Configure Health Check Retries",
		"Deploy Zero-Downtime Patching",
	}
	cicdPhrases = []string{
		"Enforce CI/CD Pipeline",
		"Hardcode Automation Workflows",
		"Setup Automated Rollback",
	}
)

const (
	cicdSeverity = "CRITICAL"
	cicdDetails  = "Rollback failure and hotfix delays are inevitable during a spike without automation."
)

// DefaultConfig: исходные константы модели.
func DefaultConfig() infra.ImpactConfig {
	return infra.ImpactConfig{
		ConversionLossPerSecond: 7,
		ProfitPerRequest:        15,
		DailyTrafficMultiplier:  8640,
		FailureRateThreshold:    0.05,
		HealthyHeadroom:         1.5,
		DegradedHeadroom:        0.8,
		CollapseFloor:           5,
		LatencyThresholdMs:      200,
		ThroughputThreshold:     500,
		ArchitectureDefault:     50,
		DevOpsDefault:           20,
		MaxRemediations:         3,
	}
}

// Engine вычисляет BusinessInsights. Случайность влияет только на формулировки,
// условия срабатывания детерминированы.
type Engine struct {
	cfg infra.ImpactConfig

	mu  sync.Mutex // *rand.Rand не потокобезопасен
	rnd *rand.Rand
}

// NewEngine: rnd == nil, недетерминированный источник.
func NewEngine(cfg infra.ImpactConfig, rnd *rand.Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Engine{cfg: cfg, rnd: rnd}
}

// Derive: функция от результатов зондов; любой из них может отсутствовать.
func (e *Engine) Derive(load *domain.LoadTestResult, browser *domain.BrowserAuditResult, repo *domain.RepoScanResult) domain.BusinessInsights {
	out := domain.BusinessInsights{Remediations: []string{}}

	// 1. Архитектура и DevOps не зависят от нагрузочного теста
	pArch := float64(e.cfg.ArchitectureDefault)
	if browser != nil {
		pArch = float64(browser.Performance+browser.BestPractices) / 2
	}
	pDev := float64(e.cfg.DevOpsDefault)
	if repo != nil {
		pDev = float64(repo.Summary.DevOpsScore)
	}

	// 2. Нагрузочные показатели; без теста все слагаемые нулевые
	var pPerf float64
	var rems []string
	if load != nil {
		avg := finite(load.Latency.Avg)
		p95 := finite(load.Latency.P95)
		failRate := finite(load.FailureRateUnderTest)
		throughput := finite(load.Throughput)

		out.ConversionLoss = decimal.NewFromFloat(avg).
			Div(decimal.NewFromInt(1000)).
			Mul(decimal.NewFromFloat(e.cfg.ConversionLossPerSecond)).
			Round(1).
			InexactFloat64()

		out.AdSpendRisk = decimal.NewFromFloat(failRate).
			Mul(decimal.NewFromFloat(throughput)).
			Mul(decimal.NewFromFloat(e.cfg.ProfitPerRequest)).
			Mul(decimal.NewFromFloat(e.cfg.DailyTrafficMultiplier)).
			Round(0).
			IntPart()

		pPerf = math.Max(0, 100-failRate*1000-avg/50)
		out.CollapsePoint = e.collapsePoint(throughput, failRate)

		if p95 > e.cfg.LatencyThresholdMs {
			rems = append(rems, fmt.Sprintf("%s → -%dms p95 latency", e.pick(latencyPhrases), int64(math.Round(p95*0.7))))
		}
		if throughput < e.cfg.ThroughputThreshold {
			rems = append(rems, fmt.Sprintf("%s → +%sx throughput capacity", e.pick(throughputPhrases), e.gain()))
		}
		if finite(load.ServerErrorRate) > 0 || failRate > e.cfg.FailureRateThreshold {
			rems = append(rems, e.pick(errorPhrases)+" → Neutralize service disruptions")
		}
	}

	// 3. CI/CD риск, только если скан прошел и пайплайна нет
	if repo != nil && !repo.CICD.Present {
		out.CICDRisk = &domain.CICDRisk{
			Severity:    cicdSeverity,
			Consequence: fmt.Sprintf("Manual deploy = %d× higher outage risk", 2+e.intN(3)),
			Details:     cicdDetails,
		}
		rems = append(rems, e.pick(cicdPhrases)+" → Eliminate human fail-points")
	}

	if n := max(e.cfg.MaxRemediations, 0); len(rems) > n {
		rems = rems[:n]
	}
	out.Remediations = append(out.Remediations, rems...)

	out.ScoreBreakdown = domain.ScoreBreakdown{
		Performance:  roundInt(pPerf),
		Architecture: roundInt(pArch),
		DevOps:       roundInt(pDev),
	}
	out.StabilityRiskScore = roundInt((pPerf + pArch + pDev) / 3)
	return out
}

// collapsePoint: оценка req/s, при которой система ляжет.
func (e *Engine) collapsePoint(throughput, failRate float64) int {
	if throughput <= 0 {
		return 0
	}
	headroom := e.cfg.HealthyHeadroom
	if failRate > e.cfg.FailureRateThreshold {
		headroom = e.cfg.DegradedHeadroom
	}
	return max(e.cfg.CollapseFloor, roundInt(throughput*headroom))
}

func (e *Engine) pick(pool []string) string {
	return pool[e.intN(len(pool))]
}

func (e *Engine) intN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rnd.IntN(n)
}

// gain: прирост пропускной способности 1.2..2.0 с одним знаком
func (e *Engine) gain() string {
	e.mu.Lock()
	f := e.rnd.Float64()
	e.mu.Unlock()
	return decimal.NewFromFloat(1.2 + f*0.8).Round(1).String()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// roundInt округляет половины от нуля, как Math.round для неотрицательных
func roundInt(v float64) int {
	return int(math.Round(finite(v)))
}
