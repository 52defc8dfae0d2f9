package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"

	"github.com/referencias-work/curator-cli/internal/artifact"
	"github.com/referencias-work/curator-cli/internal/config"
	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/extract"
	"github.com/referencias-work/curator-cli/internal/fetcher"
	"github.com/referencias-work/curator-cli/internal/heuristics"
	"github.com/referencias-work/curator-cli/internal/linkcheck"
	"github.com/referencias-work/curator-cli/internal/metrics"
	"github.com/referencias-work/curator-cli/internal/probe"
	"github.com/referencias-work/curator-cli/internal/rank"
	"github.com/referencias-work/curator-cli/internal/store"
)

// appEnv holds the wired components shared by the subcommands.
type appEnv struct {
	Registry *prometheus.Registry
	Metrics  *metrics.Collectors
	Fetcher  *fetcher.HTTPFetcher
	Ranker   *rank.Ranker
	Service  *enrich.Service
	Checker  *linkcheck.Checker
	Store    store.Store // nil unless requested
	Sink     artifact.Sink
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

type envOptions struct {
	policy    enrich.Policy
	noDelay   bool
	withStore bool
	withSink  bool
}

// batchPolicy maps the enrich section onto the batch policy.
func batchPolicy(c config.EnrichConfig) enrich.Policy {
	return enrich.Policy{
		LocationTimeout: config.Ms(c.LocationTimeoutMs),
		PageTimeout:     config.Ms(c.PageTimeoutMs),
		DeepTimeout:     config.Ms(c.DeepTimeoutMs),
		JSONTimeout:     config.Ms(c.JSONTimeoutMs),
		CandidateLimit:  c.CandidateLimit,
		StrictThreshold: c.StrictThreshold,
	}
}

// onDemandPolicy applies the single on-demand page budget to every pass.
func onDemandPolicy(c config.EnrichConfig) enrich.Policy {
	p := enrich.OnDemandPolicy(config.Ms(c.OnDemandTimeoutMs))
	p.JSONTimeout = config.Ms(c.JSONTimeoutMs)
	p.CandidateLimit = c.CandidateLimit
	p.StrictThreshold = c.StrictThreshold
	return p
}

// initEnv builds the fetcher, heuristics and service, plus the store and
// sink when asked. Callers should defer env.Close().
func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	tables, err := heuristics.Load(cfg.Enrich.HeuristicsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load heuristics")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	delay := config.Ms(cfg.Fetch.DelayMs)
	if opts.noDelay {
		delay = 0
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Delay:        delay,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Observer:     m.ObserveFetch,
	})
	r := rank.New(tables)

	env := &appEnv{
		Registry: reg,
		Metrics:  m,
		Fetcher:  f,
		Ranker:   r,
		Service:  enrich.NewService(f, extract.NewHTML(tables), r, probe.New(tables), opts.policy),
		Checker:  linkcheck.New(f, cfg.LinkCheck.Concurrency, config.Ms(cfg.LinkCheck.TimeoutMs)),
	}

	if opts.withStore {
		st, err := store.Open(ctx, store.Options{
			Driver: cfg.Store.Driver,
			Path:   cfg.Store.Path,
			DSN:    cfg.Store.DSN,
			Dir:    cfg.Store.BadgerDir,
		})
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		env.Store = st
	}

	if opts.withSink {
		s3 := cfg.Artifacts.S3
		sink, err := artifact.Open(ctx, artifact.Options{
			Driver: cfg.Artifacts.Driver,
			Dir:    cfg.Artifacts.Dir,
			S3: artifact.S3Config{
				Endpoint:        s3.Endpoint,
				Region:          s3.Region,
				Bucket:          s3.Bucket,
				Prefix:          s3.Prefix,
				AccessKeyID:     s3.AccessKeyID,
				SecretAccessKey: s3.SecretAccessKey,
				UsePathStyle:    s3.UsePathStyle,
			},
		})
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "open artifact sink")
		}
		env.Sink = sink
	}

	return env, nil
}
