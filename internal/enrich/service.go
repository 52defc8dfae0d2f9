// Package enrich finds a location and a thumbnail for one site. It is shared
// by the batch runner and the on-demand HTTP handlers; callers differ only in
// the Policy they pass.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/extract"
	"github.com/referencias-work/curator-cli/internal/fetcher"
	"github.com/referencias-work/curator-cli/internal/probe"
	"github.com/referencias-work/curator-cli/internal/rank"
)

// CodeNoCandidate is reported when every page was tried and nothing matched.
const CodeNoCandidate = "NO_CANDIDATE_FOUND"

var (
	// ErrInvalidURL is returned when the site URL is not an absolute http(s) URL.
	ErrInvalidURL = probe.ErrInvalidURL
	// ErrNoCandidate means at least one page was fetched but nothing was found.
	ErrNoCandidate = eris.New("no candidate found")
	// ErrUnreachable matches any *UnreachableError.
	ErrUnreachable = eris.New("site unreachable")
)

// UnreachableError reports that no HTML page of the site could be fetched.
// Code is the failure code of the last attempt.
type UnreachableError struct {
	Code string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("enrich: site unreachable (%s)", e.Code)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnreachable) hold.
func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// Code maps an enrichment error to its report code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ue *UnreachableError
	switch {
	case errors.Is(err, ErrInvalidURL):
		return fetcher.CodeInvalid
	case errors.Is(err, ErrNoCandidate):
		return CodeNoCandidate
	case errors.As(err, &ue):
		return ue.Code
	case errors.Is(err, context.Canceled):
		return fetcher.CodeCanceled
	}
	if c := fetcher.CodeOf(err); c != "" {
		return c
	}
	return "ERROR"
}

// Policy holds the per-caller time budgets and selection knobs.
type Policy struct {
	LocationTimeout time.Duration
	PageTimeout     time.Duration
	DeepTimeout     time.Duration
	JSONTimeout     time.Duration
	CandidateLimit  int
	StrictThreshold int
}

// DefaultPolicy is the batch policy.
func DefaultPolicy() Policy {
	return Policy{
		LocationTimeout: 8 * time.Second,
		PageTimeout:     12 * time.Second,
		DeepTimeout:     9 * time.Second,
		JSONTimeout:     9 * time.Second,
		CandidateLimit:  rank.DefaultLimit,
		StrictThreshold: rank.DefaultStrictThreshold,
	}
}

// OnDemandPolicy uses one shorter page budget for every pass.
func OnDemandPolicy(pageTimeout time.Duration) Policy {
	p := DefaultPolicy()
	p.LocationTimeout = pageTimeout
	p.PageTimeout = pageTimeout
	p.DeepTimeout = pageTimeout
	return p
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.LocationTimeout <= 0 {
		p.LocationTimeout = d.LocationTimeout
	}
	if p.PageTimeout <= 0 {
		p.PageTimeout = d.PageTimeout
	}
	if p.DeepTimeout <= 0 {
		p.DeepTimeout = d.DeepTimeout
	}
	if p.JSONTimeout <= 0 {
		p.JSONTimeout = d.JSONTimeout
	}
	if p.CandidateLimit <= 0 {
		p.CandidateLimit = d.CandidateLimit
	}
	if p.StrictThreshold == 0 {
		p.StrictThreshold = d.StrictThreshold
	}
	return p
}

// Service runs the probe, fetch, extract and rank chain for one site at a time.
// It is safe for concurrent use.
type Service struct {
	fetcher   fetcher.Fetcher
	extractor extract.Extractor
	ranker    *rank.Ranker
	prober    *probe.Prober
	policy    Policy
}

// NewService wires the enrichment chain.
func NewService(f fetcher.Fetcher, x extract.Extractor, r *rank.Ranker, p *probe.Prober, policy Policy) *Service {
	return &Service{
		fetcher:   f,
		extractor: x,
		ranker:    r,
		prober:    p,
		policy:    policy.withDefaults(),
	}
}

// Policy returns the effective policy.
func (s *Service) Policy() Policy { return s.policy }

type pageResult struct {
	page *fetcher.Page
	err  error
}

// session caches fetched pages for one invocation so later strategy steps
// reuse earlier fetches, including failures.
type session struct {
	svc     *Service
	pages   map[string]pageResult
	fetched int
	lastErr error
}

func (s *Service) newSession() *session {
	return &session{svc: s, pages: make(map[string]pageResult)}
}

func (ss *session) html(ctx context.Context, url string, timeout time.Duration) (*fetcher.Page, bool) {
	if r, ok := ss.pages[url]; ok {
		return r.page, r.err == nil
	}
	page, err := ss.svc.fetcher.FetchHTML(ctx, url, timeout)
	ss.pages[url] = pageResult{page: page, err: err}
	if err != nil {
		ss.lastErr = err
		zap.L().Debug("enrich: page skipped", zap.String("url", url), zap.String("code", fetcher.CodeOf(err)))
		return nil, false
	}
	ss.fetched++
	return page, true
}

// miss builds the error for a search that found nothing.
func (ss *session) miss(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ss.fetched > 0 {
		return ErrNoCandidate
	}
	code := fetcher.CodeOf(ss.lastErr)
	if code == "" {
		code = fetcher.CodeNetwork
	}
	return &UnreachableError{Code: code, Err: ss.lastErr}
}
