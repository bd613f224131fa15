package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

const lighthouseReportJSON = `{
  "lighthouseVersion": "12.2.1",
  "requestedUrl": "https://shop.example.com/",
  "categories": {
    "performance": {"id": "performance", "score": 0.914},
    "accessibility": {"id": "accessibility", "score": 0.87},
    "best-practices": {"id": "best-practices", "score": 0.78},
    "seo": {"id": "seo", "score": null}
  },
  "audits": {
    "interactive": {"id": "interactive", "score": 0.66, "numericValue": 3842.6},
    "first-contentful-paint": {"id": "first-contentful-paint", "score": 0.9}
  }
}`

func TestParseLighthouseReport(t *testing.T) {
	res, err := ParseLighthouseReport([]byte(lighthouseReportJSON))
	require.NoError(t, err)

	assert.Equal(t, 91, res.Performance)
	assert.Equal(t, 87, res.Accessibility)
	assert.Equal(t, 78, res.BestPractices)
	assert.Equal(t, 0, res.SEO)
	assert.Equal(t, 66, res.Interactivity)
	require.NotNil(t, res.LoadTimeMs)
	assert.Equal(t, 3843, *res.LoadTimeMs)
}

func TestParseLighthouseReport_RuntimeError(t *testing.T) {
	_, err := ParseLighthouseReport([]byte(`{"categories":{"performance":{"score":null}},
		"runtimeError":{"code":"ERRORED_DOCUMENT_REQUEST","message":"Status code: 503"}}`))
	require.Error(t, err)
}

func TestBrowserAuditor_Run(t *testing.T) {
	t.Run("stdout report", func(t *testing.T) {
		runner := &fakeRunner{fn: func(Command) ([]byte, error) { return []byte(lighthouseReportJSON), nil }}
		a := NewBrowserAuditor(runner, "lighthouse", "--headless", zap.NewNop())

		res, err := a.Run(context.Background(), "https://shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, 91, res.Performance)
		assert.Equal(t, "https://shop.example.com", runner.calls[0].Args[0])
		assert.Contains(t, runner.calls[0].Args, "--chrome-flags=--headless")
	})

	t.Run("failure is absent", func(t *testing.T) {
		runner := &fakeRunner{fn: func(Command) ([]byte, error) { return nil, errors.New("chrome not found") }}
		a := NewBrowserAuditor(runner, "lighthouse", "--headless", zap.NewNop())

		res, err := a.Run(context.Background(), "https://shop.example.com")
		assert.Nil(t, res)
		assert.ErrorIs(t, err, domain.ErrProbeUnavailable)
	})
}
