// Package briefing собирает текстовый контекст для reasoning-сервиса.
package briefing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// RepoNotAvailable: явная пометка вместо блока репозитория.
const RepoNotAvailable = "Repository Signals: Not available (no repository provided)"

// Builder детерминированно собирает бриф и обрезает его до maxChars символов.
type Builder struct {
	maxChars int
}

func NewBuilder(maxChars int) *Builder {
	return &Builder{maxChars: maxChars}
}

func (b *Builder) MaxChars() int { return b.maxChars }

// Build: блоки без результата зонда опускаются целиком, для репозитория пишется пометка.
func (b *Builder) Build(subject string, load *domain.LoadTestResult, repo *domain.RepoScanResult, browser *domain.BrowserAuditResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Target under test: %s\n\n", subject)

	if load != nil {
		sb.WriteString("Runtime Metrics (Observed):\n")
		fmt.Fprintf(&sb, "- Failure Rate: %s%%\n", percent(load.FailureRateUnderTest))
		fmt.Fprintf(&sb, "- p95 Latency: %s ms\n", number(load.Latency.P95))
		fmt.Fprintf(&sb, "- Avg Latency: %s ms\n", number(load.Latency.Avg))
		fmt.Fprintf(&sb, "- Throughput: %s req/s\n", number(load.Throughput))
		fmt.Fprintf(&sb, "- Server Error Rate (5xx): %s%%\n\n", percent(load.ServerErrorRate))
	}

	if repo != nil {
		sb.WriteString("Repository Signals (Static):\n")
		fmt.Fprintf(&sb, "- Docker: %s\n", detected(repo.Docker.Present))
		fmt.Fprintf(&sb, "- CI/CD: %s\n", detected(repo.CICD.Present))
		fmt.Fprintf(&sb, "- Kubernetes: %s\n\n", detected(repo.Kubernetes.Present))
	} else {
		sb.WriteString(RepoNotAvailable + "\n\n")
	}

	if browser != nil {
		sb.WriteString("Browser Experience Audit (External):\n")
		fmt.Fprintf(&sb, "- Performance Score: %d/100\n", browser.Performance)
		fmt.Fprintf(&sb, "- Accessibility Score: %d/100\n", browser.Accessibility)
		fmt.Fprintf(&sb, "- Best Practices Score: %d/100\n", browser.BestPractices)
		fmt.Fprintf(&sb, "- SEO Score: %d/100\n", browser.SEO)
		fmt.Fprintf(&sb, "- Interactivity Score: %d/100\n", browser.Interactivity)
		if browser.LoadTimeMs != nil && *browser.LoadTimeMs > 0 {
			fmt.Fprintf(&sb, "- Real Browser Load Time: %d ms\n", *browser.LoadTimeMs)
		}
		sb.WriteString("\n")
	}

	return Truncate(sb.String(), b.maxChars)
}

// Telemetry: сводка сессии для второго системного сообщения в чате.
func (b *Builder) Telemetry(s *domain.AuditSession) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Environment: %s\n", s.URL)
	if m := s.Metrics; m != nil {
		fmt.Fprintf(&sb, "[RUNTIME] Latency p95: %sms, Throughput: %sreq/s, Errors: %s%%.\n",
			number(m.Latency.P95), number(m.Throughput), percent(m.ServerErrorRate))
	}

	bi := s.Insights
	fmt.Fprintf(&sb, "[BUSINESS] Conversion Loss: %s%%, Ad Spend Risk: ₹%d, Stability Score: %d/100.\n",
		number(bi.ConversionLoss), bi.AdSpendRisk, bi.StabilityRiskScore)

	if r := s.Repo; r != nil {
		fmt.Fprintf(&sb, "[DEVOPS] Score: %d/100, Docker: %t, CI/CD: %t.\n",
			r.Summary.DevOpsScore, r.Docker.Present, r.CICD.Present)
	}
	if br := s.Browser; br != nil {
		fmt.Fprintf(&sb, "[QUALITY] Performance: %d/100, Best Practices: %d/100.\n",
			br.Performance, br.BestPractices)
	}

	return Truncate(sb.String(), b.maxChars)
}

// Truncate оставляет первые n символов (рун). n <= 0, пустая строка.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func detected(ok bool) string {
	if ok {
		return "Detected"
	}
	return "Not detected"
}

func number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return strconv.FormatFloat(v*100, 'f', 2, 64)
}
