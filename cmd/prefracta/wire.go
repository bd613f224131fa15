package main

import (
	"fmt"

	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/briefing"
	"github.com/xela07ax/prefracta-audit/internal/engine"
	"github.com/xela07ax/prefracta-audit/internal/impact"
	"github.com/xela07ax/prefracta-audit/internal/probe"
	"github.com/xela07ax/prefracta-audit/internal/reasoning"
)

// pipeline: части прогона, общие для serve и audit.
type pipeline struct {
	fanout   *engine.Fanout
	impact   *impact.Engine
	briefing *briefing.Builder
	gateway  *reasoning.Gateway
}

// newPipeline собирает зонды, движок оценок и шлюз. trail может быть nil.
func (a *app) newPipeline(trail audit.Recorder, metrics *engine.Metrics) (*pipeline, error) {
	runner := probe.ExecRunner{}
	p := a.cfg.Probes

	load := probe.NewLoadGenerator(runner, p.K6Binary, p.VirtualUsers, p.Duration, p.WorkDir, a.logger)
	browser := probe.NewBrowserAuditor(runner, p.LighthouseBinary, p.ChromeFlags, a.logger)
	repo := probe.NewRepoScanner(runner, p.GitBinary, p.WorkDir, a.logger)

	gateway, err := reasoning.NewGateway(a.cfg.Reasoning, reasoning.NewProviders(a.cfg.Reasoning), metrics, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init reasoning gateway: %w", err)
	}

	return &pipeline{
		fanout:   engine.NewFanout(load, browser, repo, trail, metrics, a.logger),
		impact:   impact.NewEngine(a.cfg.Impact, nil),
		briefing: briefing.NewBuilder(a.cfg.Briefing.MaxChars),
		gateway:  gateway,
	}, nil
}
