package probe

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// cloneInto имитирует git clone: последний аргумент, целевой каталог
func cloneInto(t *testing.T, files map[string]string) *fakeRunner {
	return &fakeRunner{fn: func(cmd Command) ([]byte, error) {
		writeTree(t, cmd.Args[len(cmd.Args)-1], files)
		return nil, nil
	}}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepoScanner_ProductionReadyRepo(t *testing.T) {
	work := t.TempDir()
	runner := cloneInto(t, map[string]string{
		"package.json": `{
			"scripts": {"start": "node server.js", "test": "jest"},
			"dependencies": {"express": "^4.19.0", "pg": "^8.11.0"},
			"devDependencies": {"jest": "^29.0.0", "express": "^4.19.0"}
		}`,
		"Dockerfile":                "FROM node:20\nEXPOSE 3000\nCMD [\"node\", \"server.js\"]\n",
		".github/workflows/ci.yml":  "on: push\n",
		"charts/shop/Chart.yaml":    "apiVersion: v2\nname: shop\nversion: 1.4.2\n",
		"charts/shop/values.yaml":   "replicaCount: 2\n",
		"node_modules/x/Chart.yaml": "name: ignored\n",
	})
	s := NewRepoScanner(runner, "git", work, zap.NewNop())

	res, err := s.Scan(context.Background(), "https://github.com/acme/shop")
	require.NoError(t, err)

	assert.Equal(t, "Express", res.Framework)
	assert.Equal(t, "Postgres", res.Database)
	assert.Equal(t, 3, res.DependencyCount)
	assert.True(t, res.HasStartScript)
	assert.Equal(t, domain.DockerSignals{Present: true, HasCMD: true, ExposesPort: true}, res.Docker)
	assert.Equal(t, domain.CICDSignals{Present: true, Provider: "github-actions"}, res.CICD)
	assert.Equal(t, domain.KubernetesSignals{Present: true, Type: "helm", Chart: "shop@1.4.2"}, res.Kubernetes)
	assert.Empty(t, res.Issues)
	assert.Equal(t, domain.RepoSummary{DevOpsScore: 100, ProductionReady: true, RiskLevel: domain.RiskLow}, res.Summary)

	require.Len(t, runner.calls, 1)
	args := runner.calls[0].Args
	assert.Equal(t, []string{"clone", "--depth", "1", "--filter=blob:none", "--", "https://github.com/acme/shop"}, args[:6])
	assertEmptyDir(t, work)
}

func TestRepoScanner_BareRepo(t *testing.T) {
	work := t.TempDir()
	runner := cloneInto(t, map[string]string{
		"README.md":  "# hello\n",
		"Dockerfile": "FROM alpine\nRUN echo hi\n",
	})
	s := NewRepoScanner(runner, "git", work, zap.NewNop())

	res, err := s.Scan(context.Background(), "https://github.com/acme/bare")
	require.NoError(t, err)

	assert.Equal(t, "Unknown", res.Framework)
	assert.Equal(t, "None", res.Database)
	assert.Equal(t, []string{IssueManifestMissing, IssueDockerNoCMD, IssueDockerNoExpose, IssueNoCICD}, res.Issues)
	assert.Equal(t, 30, res.Summary.DevOpsScore)
	assert.Equal(t, domain.RiskHigh, res.Summary.RiskLevel)
	assertEmptyDir(t, work)
}

func TestRepoScanner_OtherSignals(t *testing.T) {
	t.Run("gitlab ci and raw manifests", func(t *testing.T) {
		runner := cloneInto(t, map[string]string{
			"package.json":       `{"dependencies": {"next": "14.0.0", "mongoose": "8.0.0"}}`,
			".gitlab-ci.yml":     "stages: [build]\n",
			"k8s/deployment.yml": "kind: Deployment\n",
		})
		s := NewRepoScanner(runner, "git", t.TempDir(), zap.NewNop())

		res, err := s.Scan(context.Background(), "https://gitlab.com/acme/web")
		require.NoError(t, err)
		assert.Equal(t, "Next.js", res.Framework)
		assert.Equal(t, "MongoDB", res.Database)
		assert.Equal(t, "gitlab-ci", res.CICD.Provider)
		assert.Equal(t, "raw", res.Kubernetes.Type)
		assert.Equal(t, []string{IssueNoStartScript}, res.Issues)
		assert.Equal(t, 50, res.Summary.DevOpsScore)
		assert.Equal(t, domain.RiskMedium, res.Summary.RiskLevel)
	})

	t.Run("jenkinsfile", func(t *testing.T) {
		runner := cloneInto(t, map[string]string{"Jenkinsfile": "pipeline {}\n"})
		s := NewRepoScanner(runner, "git", t.TempDir(), zap.NewNop())

		res, err := s.Scan(context.Background(), "https://example.com/acme/legacy.git")
		require.NoError(t, err)
		assert.Equal(t, "jenkins", res.CICD.Provider)
	})
}

func TestRepoScanner_CloneFailure(t *testing.T) {
	work := t.TempDir()
	runner := &fakeRunner{fn: func(Command) ([]byte, error) {
		return nil, errors.New("git: exit status 128: repository not found")
	}}
	s := NewRepoScanner(runner, "git", work, zap.NewNop())

	res, err := s.Scan(context.Background(), "https://github.com/acme/missing")
	assert.Nil(t, res)
	require.ErrorIs(t, err, domain.ErrRepoCloneFailed)
	assertEmptyDir(t, work)
}

func TestRepoScanner_InvalidManifest(t *testing.T) {
	runner := cloneInto(t, map[string]string{"package.json": "{not json"})
	s := NewRepoScanner(runner, "git", t.TempDir(), zap.NewNop())

	_, err := s.Scan(context.Background(), "https://github.com/acme/broken")
	require.ErrorIs(t, err, domain.ErrProbeUnavailable)
}

func TestRepoScanner_CleanupOnPanic(t *testing.T) {
	work := t.TempDir()
	runner := &fakeRunner{fn: func(cmd Command) ([]byte, error) {
		writeTree(t, cmd.Args[len(cmd.Args)-1], map[string]string{"package.json": "{}"})
		panic("scanner blew up")
	}}
	s := NewRepoScanner(runner, "git", work, zap.NewNop())

	assert.Panics(t, func() {
		_, _ = s.Scan(context.Background(), "https://github.com/acme/shop")
	})
	assertEmptyDir(t, work)
}
