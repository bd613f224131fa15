package probe

import (
	"math"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// secondsThreshold: значения задержки не больше порога считаются секундами.
// Медленный ответ (> 10 000 мс), пришедший в секундах, так не распознать.
const secondsThreshold = 10

// RawLoadTest: сырые показатели нагрузочного прогона до сверки единиц.
type RawLoadTest struct {
	P50, P95, P99, Avg float64 // секунды или миллисекунды
	// LatencyInMillis: единица известна источнику, порог secondsThreshold не применяется
	LatencyInMillis bool
	Throughput      float64 // req/s
	FailureRate     float64 // доля неуспешных запросов
	ServerErrors    int64   // число ответов 5xx
	TotalRequests   int64
	VirtualUsers    int
	Duration        string
}

// NormalizeLoadTest приводит сырые показатели к каноническому виду: задержки в мс,
// доли в [0,1], нечисловые значения обнуляются.
func NormalizeLoadTest(raw RawLoadTest) domain.LoadTestResult {
	res := domain.LoadTestResult{
		Latency: domain.Latency{
			P50: latency(raw.P50, raw.LatencyInMillis),
			P95: latency(raw.P95, raw.LatencyInMillis),
			P99: latency(raw.P99, raw.LatencyInMillis),
			Avg: latency(raw.Avg, raw.LatencyInMillis),
		},
		Throughput:           nonNegative(raw.Throughput),
		FailureRateUnderTest: fraction(raw.FailureRate),
		TotalRequests:        raw.TotalRequests,
		VirtualUsers:         raw.VirtualUsers,
		Duration:             raw.Duration,
	}
	if raw.TotalRequests > 0 && raw.ServerErrors > 0 {
		res.ServerErrorRate = fraction(float64(raw.ServerErrors) / float64(raw.TotalRequests))
	}
	return res
}

func latency(v float64, millis bool) float64 {
	if millis {
		return nonNegative(v)
	}
	return toMillis(v)
}

func toMillis(v float64) float64 {
	v = nonNegative(v)
	if v <= secondsThreshold {
		return v * 1000
	}
	return v
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func fraction(v float64) float64 {
	return math.Min(nonNegative(v), 1)
}
