package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// BrowserAuditor запускает Lighthouse в headless Chrome.
type BrowserAuditor struct {
	runner      CommandRunner
	binary      string
	chromeFlags string
	logger      *zap.Logger
}

func NewBrowserAuditor(runner CommandRunner, binary, chromeFlags string, logger *zap.Logger) *BrowserAuditor {
	return &BrowserAuditor{
		runner:      runner,
		binary:      binary,
		chromeFlags: chromeFlags,
		logger:      logger.Named("probe.browser"),
	}
}

func (a *BrowserAuditor) Run(ctx context.Context, target string) (*domain.BrowserAuditResult, error) {
	out, err := a.runner.Run(ctx, Command{
		Name: a.binary,
		Args: []string{
			target,
			"--output=json",
			"--output-path=stdout",
			"--quiet",
			"--only-categories=performance,accessibility,best-practices,seo",
			"--chrome-flags=" + a.chromeFlags,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: browser: %v", domain.ErrProbeUnavailable, err)
	}

	res, err := ParseLighthouseReport(out)
	if err != nil {
		return nil, fmt.Errorf("%w: browser: %v", domain.ErrProbeUnavailable, err)
	}

	a.logger.Info("browser audit finished",
		zap.String("target", target),
		zap.Int("performance", res.Performance))
	return res, nil
}

type lighthouseScore struct {
	Score        *float64 `json:"score"`
	NumericValue *float64 `json:"numericValue"`
}

type lighthouseReport struct {
	Categories map[string]lighthouseScore `json:"categories"`
	Audits     map[string]lighthouseScore `json:"audits"`
	RuntimeErr *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"runtimeError"`
}

// ParseLighthouseReport переводит оценки 0..1 в целые 0..100.
func ParseLighthouseReport(data []byte) (*domain.BrowserAuditResult, error) {
	var rep lighthouseReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode lighthouse report: %w", err)
	}
	if rep.RuntimeErr != nil && rep.RuntimeErr.Code != "" {
		return nil, fmt.Errorf("lighthouse runtime error %s: %s", rep.RuntimeErr.Code, rep.RuntimeErr.Message)
	}
	if len(rep.Categories) == 0 {
		return nil, fmt.Errorf("decode lighthouse report: no categories")
	}

	interactive := rep.Audits["interactive"]
	res := &domain.BrowserAuditResult{
		Performance:   percent(rep.Categories["performance"].Score),
		Accessibility: percent(rep.Categories["accessibility"].Score),
		BestPractices: percent(rep.Categories["best-practices"].Score),
		SEO:           percent(rep.Categories["seo"].Score),
		Interactivity: percent(interactive.Score),
	}
	if v := interactive.NumericValue; v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= 0 {
		ms := int(math.Round(*v))
		res.LoadTimeMs = &ms
	}
	return res, nil
}

func percent(score *float64) int {
	if score == nil {
		return 0
	}
	return int(math.Round(fraction(*score) * 100))
}
