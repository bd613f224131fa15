package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

const (
	IssueManifestMissing = "package.json missing"
	IssueNoStartScript   = "Missing start script"
	IssueDockerNoCMD     = "Dockerfile missing CMD/ENTRYPOINT"
	IssueDockerNoExpose  = "Dockerfile missing EXPOSE"
	IssueNoCICD          = "CI/CD pipeline missing"
)

var (
	dockerCmdRe    = regexp.MustCompile(`(?i)CMD|ENTRYPOINT`)
	dockerExposeRe = regexp.MustCompile(`(?i)EXPOSE\s+\d+`)

	// k8sDirs: каталоги, в которых обычно лежат манифесты
	k8sDirs = []string{"k8s", "manifests", "deploy", "deployment"}
)

// lookup: порядок важен: первое совпадение побеждает
type lookup struct {
	pkg  string
	name string
}

var (
	frameworkLookup = []lookup{
		{"express", "Express"},
		{"next", "Next.js"},
		{"@nestjs/core", "NestJS"},
	}
	databaseLookup = []lookup{
		{"mongoose", "MongoDB"},
		{"pg", "Postgres"},
		{"mysql2", "MySQL"},
	}
)

type ciMarker struct {
	provider string
	pattern  string
}

var ciMarkers = []ciMarker{
	{"github-actions", ".github/workflows/*"},
	{"gitlab-ci", ".gitlab-ci.{yml,yaml}"},
	{"circleci", ".circleci/config.{yml,yaml}"},
	{"jenkins", "Jenkinsfile*"},
	{"azure-pipelines", "azure-pipelines.{yml,yaml}"},
}

var helmChartPatterns = []string{"Chart.yaml", "{chart,charts,helm,deploy,deployment}/Chart.yaml", "{charts,helm}/*/Chart.yaml"}

type compiledMarker struct {
	provider string
	g        glob.Glob
}

// RepoScanner клонирует репозиторий во временный каталог и ищет DevOps-сигналы.
type RepoScanner struct {
	runner  CommandRunner
	binary  string
	workDir string
	logger  *zap.Logger

	ci   []compiledMarker
	helm []glob.Glob
}

func NewRepoScanner(runner CommandRunner, binary, workDir string, logger *zap.Logger) *RepoScanner {
	s := &RepoScanner{
		runner:  runner,
		binary:  binary,
		workDir: workDir,
		logger:  logger.Named("probe.repo"),
	}
	// Шаблоны статические, ошибка компиляции, баг в коде
	for _, m := range ciMarkers {
		s.ci = append(s.ci, compiledMarker{provider: m.provider, g: glob.MustCompile(m.pattern, '/')})
	}
	for _, p := range helmChartPatterns {
		s.helm = append(s.helm, glob.MustCompile(p, '/'))
	}
	return s
}

// Scan возвращает ErrRepoCloneFailed, если клонирование не удалось. Каталог удаляется
// на любом выходе, в том числе при панике в анализе.
func (s *RepoScanner) Scan(ctx context.Context, repoURL string) (*domain.RepoScanResult, error) {
	dir, err := os.MkdirTemp(s.workDir, fmt.Sprintf("repo-%d-*", time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("%w: repo: workdir: %v", domain.ErrProbeUnavailable, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Warn("failed to remove clone dir", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	_, err = s.runner.Run(ctx, Command{
		Name: s.binary,
		Args: []string{"clone", "--depth", "1", "--filter=blob:none", "--", repoURL, dir},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRepoCloneFailed, err)
	}

	res, err := s.inspect(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: repo: %v", domain.ErrProbeUnavailable, err)
	}

	s.logger.Info("repository scanned",
		zap.String("repo", repoURL),
		zap.Int("devops_score", res.Summary.DevOpsScore),
		zap.Strings("issues", res.Issues))
	return res, nil
}

// inspect анализирует уже склонированное дерево.
func (s *RepoScanner) inspect(root string) (*domain.RepoScanResult, error) {
	res := &domain.RepoScanResult{
		Framework: "Unknown",
		Database:  "None",
		Issues:    []string{},
	}

	// 1. Манифест
	if err := s.inspectManifest(root, res); err != nil {
		return nil, err
	}

	// 2. Dockerfile
	if data, err := os.ReadFile(filepath.Join(root, "Dockerfile")); err == nil {
		res.Docker.Present = true
		if dockerCmdRe.Match(data) {
			res.Docker.HasCMD = true
		} else {
			res.Issues = append(res.Issues, IssueDockerNoCMD)
		}
		if dockerExposeRe.Match(data) {
			res.Docker.ExposesPort = true
		} else {
			res.Issues = append(res.Issues, IssueDockerNoExpose)
		}
	}

	paths, err := listTree(root, 3)
	if err != nil {
		return nil, err
	}

	// 3. CI/CD
	if isDir(filepath.Join(root, ".github", "workflows")) {
		res.CICD = domain.CICDSignals{Present: true, Provider: "github-actions"}
	} else if provider := s.matchCI(paths); provider != "" {
		res.CICD = domain.CICDSignals{Present: true, Provider: provider}
	} else {
		res.Issues = append(res.Issues, IssueNoCICD)
	}

	// 4. Kubernetes / Helm
	for _, d := range k8sDirs {
		if isDir(filepath.Join(root, d)) {
			res.Kubernetes = domain.KubernetesSignals{Present: true, Type: "raw"}
			break
		}
	}
	if chart := s.matchHelm(paths); chart != "" {
		res.Kubernetes.Present = true
		res.Kubernetes.Type = "helm"
		res.Kubernetes.Chart = readChart(filepath.Join(root, filepath.FromSlash(chart)))
	}

	res.Summarize()
	return res, nil
}

type packageManifest struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (s *RepoScanner) inspectManifest(root string, res *domain.RepoScanResult) error {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		res.Issues = append(res.Issues, IssueManifestMissing)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read package.json: %w", err)
	}

	var pkg packageManifest
	if err := json.Unmarshal(data, &pkg); err != nil {
		return fmt.Errorf("decode package.json: %w", err)
	}

	deps := make(map[string]struct{}, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for name := range pkg.Dependencies {
		deps[name] = struct{}{}
	}
	for name := range pkg.DevDependencies {
		deps[name] = struct{}{}
	}
	res.DependencyCount = len(deps)
	res.HasStartScript = strings.TrimSpace(pkg.Scripts["start"]) != ""

	res.Framework = firstMatch(frameworkLookup, deps, res.Framework)
	res.Database = firstMatch(databaseLookup, deps, res.Database)

	if !res.HasStartScript {
		res.Issues = append(res.Issues, IssueNoStartScript)
	}
	return nil
}

func firstMatch(table []lookup, deps map[string]struct{}, fallback string) string {
	for _, l := range table {
		if _, ok := deps[l.pkg]; ok {
			return l.name
		}
	}
	return fallback
}

func (s *RepoScanner) matchCI(paths []string) string {
	for _, m := range s.ci {
		for _, p := range paths {
			if m.g.Match(p) {
				return m.provider
			}
		}
	}
	return ""
}

func (s *RepoScanner) matchHelm(paths []string) string {
	for _, g := range s.helm {
		for _, p := range paths {
			if g.Match(p) {
				return p
			}
		}
	}
	return ""
}

type helmChart struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// readChart возвращает name@version; нечитаемый Chart.yaml не отменяет сам факт helm
func readChart(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var c helmChart
	if err := yaml.Unmarshal(data, &c); err != nil || c.Name == "" {
		return ""
	}
	if c.Version == "" {
		return c.Name
	}
	return c.Name + "@" + c.Version
}

// listTree возвращает относительные пути (через '/') не глубже maxDepth.
func listTree(root string, maxDepth int) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || strings.Count(rel, "/")+1 >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk clone: %w", err)
	}
	return out, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
