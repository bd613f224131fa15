package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoScanResult_SummarizeAllCombinations(t *testing.T) {
	for mask := 0; mask < 16; mask++ {
		docker := mask&1 != 0
		cicd := mask&2 != 0
		k8s := mask&4 != 0
		start := mask&8 != 0

		r := RepoScanResult{
			HasStartScript: start,
			Docker:         DockerSignals{Present: docker},
			CICD:           CICDSignals{Present: cicd},
			Kubernetes:     KubernetesSignals{Present: k8s},
		}
		r.Summarize()

		want := 0
		if docker {
			want += 30
		}
		if cicd {
			want += 30
		}
		if k8s {
			want += 20
		}
		if start {
			want += 20
		}

		assert.Equal(t, want, r.Summary.DevOpsScore, "mask %04b", mask)
		assert.Equal(t, start && docker && cicd, r.Summary.ProductionReady, "mask %04b", mask)
		assert.Equal(t, RiskLevelFor(want), r.Summary.RiskLevel, "mask %04b", mask)
	}
}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelFor(100))
	assert.Equal(t, RiskLow, RiskLevelFor(70))
	assert.Equal(t, RiskMedium, RiskLevelFor(60))
	assert.Equal(t, RiskMedium, RiskLevelFor(40))
	assert.Equal(t, RiskHigh, RiskLevelFor(30))
	assert.Equal(t, RiskHigh, RiskLevelFor(0))
}

func TestAuditRequest_Normalize(t *testing.T) {
	t.Run("empty request is rejected", func(t *testing.T) {
		_, err := AuditRequest{TargetURL: "  ", RepositoryURL: ""}.Normalize()
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("relative target is rejected", func(t *testing.T) {
		_, err := AuditRequest{TargetURL: "example.com/path"}.Normalize()
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("flag-like repository is rejected", func(t *testing.T) {
		_, err := AuditRequest{RepositoryURL: "--upload-pack=touch /tmp/x"}.Normalize()
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("valid inputs are trimmed", func(t *testing.T) {
		req, err := AuditRequest{
			TargetURL:     " https://shop.example.com ",
			RepositoryURL: "git@github.com:acme/shop.git",
		}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "https://shop.example.com", req.TargetURL)
		assert.True(t, req.HasTarget())
		assert.True(t, req.HasRepository())
		assert.Equal(t, "https://shop.example.com", req.Subject())
	})

	t.Run("repository only uses repository as subject", func(t *testing.T) {
		req, err := AuditRequest{RepositoryURL: "https://github.com/acme/shop"}.Normalize()
		require.NoError(t, err)
		assert.False(t, req.HasTarget())
		assert.Equal(t, "https://github.com/acme/shop", req.Subject())
	})
}

func TestAuditSession_State(t *testing.T) {
	s := &AuditSession{History: []Turn{{Role: RoleAssistant, Content: "verdict"}}}
	assert.Equal(t, SessionCreated, s.State())

	s.History = append(s.History, Turn{Role: RoleUser}, Turn{Role: RoleAssistant})
	assert.Equal(t, SessionActive, s.State())
}
