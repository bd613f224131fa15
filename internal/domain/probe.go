package domain

// ProbeKind: тип внешнего зонда.
type ProbeKind string

const (
	ProbeLoad    ProbeKind = "load"
	ProbeBrowser ProbeKind = "browser"
	ProbeRepo    ProbeKind = "repo"
)

// Latency: перцентили задержки в миллисекундах.
type Latency struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Avg float64 `json:"avg"`
}

// LoadTestResult: каноническая запись нагрузочного теста после нормализации.
type LoadTestResult struct {
	Latency              Latency `json:"latency"`
	Throughput           float64 `json:"throughput"`           // req/s
	FailureRateUnderTest float64 `json:"failureRateUnderTest"` // 0..1
	ServerErrorRate      float64 `json:"serverErrorRate"`      // 0..1 (5xx)

	TotalRequests int64  `json:"totalRequests"`
	VirtualUsers  int    `json:"vus"`
	Duration      string `json:"duration"`
}

// BrowserAuditResult: оценки браузерного аудита (0..100).
type BrowserAuditResult struct {
	Performance   int  `json:"performance"`
	Accessibility int  `json:"accessibility"`
	BestPractices int  `json:"bestPractices"`
	SEO           int  `json:"seo"`
	Interactivity int  `json:"interactivity"`
	LoadTimeMs    *int `json:"loadTimeMs,omitempty"`
}

// RiskLevel: уровень риска по DevOps-сигналам репозитория.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type DockerSignals struct {
	Present     bool `json:"present"`
	HasCMD      bool `json:"hasCMD"`
	ExposesPort bool `json:"exposesPort"`
}

type CICDSignals struct {
	Present  bool   `json:"present"`
	Provider string `json:"provider,omitempty"` // github-actions, gitlab-ci, ...
}

type KubernetesSignals struct {
	Present bool   `json:"present"`
	Type    string `json:"type,omitempty"`  // raw | helm
	Chart   string `json:"chart,omitempty"` // name@version из Chart.yaml
}

type RepoSummary struct {
	DevOpsScore     int       `json:"devOpsScore"`
	ProductionReady bool      `json:"productionReady"`
	RiskLevel       RiskLevel `json:"riskLevel"`
}

// RepoScanResult: результат статического анализа репозитория.
type RepoScanResult struct {
	Framework       string            `json:"framework"`
	Database        string            `json:"database"`
	HasStartScript  bool              `json:"hasStartScript"`
	DependencyCount int               `json:"dependencyCount"`
	Docker          DockerSignals     `json:"docker"`
	CICD            CICDSignals       `json:"cicd"`
	Kubernetes      KubernetesSignals `json:"kubernetes"`
	Issues          []string          `json:"issues"`
	Summary         RepoSummary       `json:"summary"`
}

// Summarize пересчитывает производную сводку из флагов присутствия.
// devOpsScore = 30·docker + 30·cicd + 20·kubernetes + 20·hasStartScript.
func (r *RepoScanResult) Summarize() {
	score := 0
	if r.Docker.Present {
		score += 30
	}
	if r.CICD.Present {
		score += 30
	}
	if r.Kubernetes.Present {
		score += 20
	}
	if r.HasStartScript {
		score += 20
	}

	r.Summary = RepoSummary{
		DevOpsScore:     score,
		ProductionReady: r.HasStartScript && r.Docker.Present && r.CICD.Present,
		RiskLevel:       RiskLevelFor(score),
	}
}

// RiskLevelFor: low при score ≥ 70, medium при ≥ 40, иначе high.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 70:
		return RiskLow
	case score >= 40:
		return RiskMedium
	default:
		return RiskHigh
	}
}
