package domain

type ScoreBreakdown struct {
	Performance  int `json:"performance"`
	Architecture int `json:"architecture"`
	DevOps       int `json:"devops"`
}

// CICDRisk появляется только если скан репозитория прошел и CI/CD не найден.
type CICDRisk struct {
	Severity    string `json:"severity"`
	Consequence string `json:"consequence"`
	Details     string `json:"details"`
}

// BusinessInsights: синтетические бизнес-оценки, вычисляются один раз на сессию.
type BusinessInsights struct {
	ConversionLoss     float64        `json:"conversionLoss"` // %
	AdSpendRisk        int64          `json:"adSpendRisk"`
	StabilityRiskScore int            `json:"stabilityRiskScore"`
	ScoreBreakdown     ScoreBreakdown `json:"scoreBreakdown"`
	Remediations       []string       `json:"remediations"`
	CollapsePoint      int            `json:"collapsePoint"` // req/s
	CICDRisk           *CICDRisk      `json:"cicdRisk"`
}
