// Package resolver is the entry point of the engine. It turns a snapshot and
// a target description into one actionable node or a structured failure.
//
// Three paths share one Ranker per weight mode and one explicitly
// constructed cache:
//
//   - Resolve takes a flat selector.Spec.
//   - ResolvePlan walks a decision-chain plan.
//   - MatchStructure finds the repeated items of a card list.
package resolver

import (
	"sync"
	"time"

	"github.com/devicelab-dev/uiresolve/pkg/cache"
	"github.com/devicelab-dev/uiresolve/pkg/chain"
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/logger"
	"github.com/devicelab-dev/uiresolve/pkg/rank"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
	"github.com/devicelab-dev/uiresolve/pkg/selector"
)

// DefaultMaxCandidates bounds the ranked list kept in a Result.
const DefaultMaxCandidates = 10

// Config is the per-call configuration.
type Config struct {
	Mode               scoring.Mode
	MinConfidence      float64
	RequireUniqueness  bool
	ForbidContainers   bool
	TimeBudget         time.Duration // chain only
	PerCandidateBudget time.Duration // chain only
	Screen             core.Size     // overrides the size derived from the snapshot
	Hints              container.Hints
	MaxCandidates      int // 0 keeps DefaultMaxCandidates, negative keeps all
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Mode:               scoring.ModeDefault,
		MinConfidence:      rank.DefaultMinConfidence,
		RequireUniqueness:  true,
		ForbidContainers:   true,
		TimeBudget:         chain.DefaultTimeBudget,
		PerCandidateBudget: chain.DefaultPerCandidateBudget,
	}
}

func (c Config) policy() rank.Policy {
	return rank.Policy{
		MinConfidence:     c.MinConfidence,
		RequireUniqueness: c.RequireUniqueness,
		ForbidContainers:  c.ForbidContainers,
	}
}

// Result is the outcome of a flat resolution.
type Result struct {
	SnapshotID string              `json:"snapshotId"`
	Target     string              `json:"target"`
	Winner     *scoring.Candidate  `json:"winner,omitempty"`
	Coordinate *core.Point         `json:"coordinate,omitempty"`
	Confidence float64             `json:"confidence"`
	Candidates []scoring.Candidate `json:"candidates"`
	Elapsed    time.Duration       `json:"elapsed"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces time.Now for elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithContainerConfig sets the container detector configuration.
func WithContainerConfig(cfg container.Config) Option {
	return func(r *Resolver) { r.containerCfg = cfg }
}

// Resolver resolves targets. It is safe for concurrent use.
type Resolver struct {
	cache        *cache.Cache
	containerCfg container.Config
	now          func() time.Time

	mu      sync.Mutex
	rankers map[scoring.Mode]*rank.Ranker
}

// New creates a resolver backed by c. The caller owns c and its eviction;
// a nil c gets a private cache of the default size.
func New(c *cache.Cache, opts ...Option) *Resolver {
	if c == nil {
		// cache.New only fails for a non-positive size
		c, _ = cache.New(cache.DefaultSize)
	}
	r := &Resolver{
		cache:        c,
		containerCfg: container.DefaultConfig(),
		now:          time.Now,
		rankers:      make(map[scoring.Mode]*rank.Ranker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the cache the resolver reads through.
func (r *Resolver) Cache() *cache.Cache {
	return r.cache
}

// Ranker returns the ranker for mode, creating it on first use.
func (r *Resolver) Ranker(mode scoring.Mode) *rank.Ranker {
	if mode == "" {
		mode = scoring.ModeDefault
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rk, ok := r.rankers[mode]
	if !ok {
		rk = rank.New(rank.Options{Mode: mode, Container: r.containerCfg, Metrics: r.cache})
		r.rankers[mode] = rk
	}
	return rk
}

// Resolve finds the node described by spec.
//
// On failure the returned Result still carries the ranked candidates, so a
// caller can show what was considered.
func (r *Resolver) Resolve(snapshot string, spec selector.Spec, cfg Config) (*Result, error) {
	start := r.now()

	if spec.IsEmpty() {
		return nil, core.ErrInvalidSpec.WithMessage("target specification has no fields")
	}
	m, err := selector.Compile(spec)
	if err != nil {
		return nil, err
	}
	tree, err := r.cache.Tree(snapshot, cfg.Screen)
	if err != nil {
		return nil, err
	}

	ids, matches := m.Filter(tree, m.Candidates(tree))
	inputs := make([]rank.Input, len(ids))
	for i, id := range ids {
		inputs[i] = rank.Input{Node: id, Exactness: matches[i].Exactness, Keys: matches[i].Keys}
	}

	cands := r.Ranker(cfg.Mode).Rank(tree, inputs, cfg.Hints)
	res := &Result{
		SnapshotID: tree.ID(),
		Target:     m.String(),
		Candidates: truncate(cands, cfg.MaxCandidates),
	}

	if len(cands) == 0 {
		res.Elapsed = r.now().Sub(start)
		logger.Info("resolve %s: no node matched", m)
		return res, core.ErrNoCandidateAboveThreshold.
			WithMessagef("no node matches %s", spec.DescribeQuoted()).
			WithDetails(map[string]interface{}{"candidates": 0})
	}

	d, err := rank.Decide(cands, tree.Screen(), cfg.policy())
	res.Elapsed = r.now().Sub(start)
	if err != nil {
		logger.Info("resolve %s: %v", m, err)
		return res, err
	}

	res.Winner = &d.Winner
	res.Coordinate = &d.Coordinate
	res.Confidence = d.Winner.Confidence
	logger.Info("resolve %s: node %d at (%d,%d), confidence %.2f",
		m, d.Winner.Node, d.Coordinate.X, d.Coordinate.Y, d.Winner.Confidence)
	return res, nil
}

// ResolvePlan validates plan and runs it. Plan strategy settings override cfg.
func (r *Resolver) ResolvePlan(snapshot string, plan *chain.Plan, cfg Config) (*core.ExecutionResult, error) {
	if err := plan.Validate().Err(); err != nil {
		return nil, err
	}
	tree, err := r.cache.Tree(snapshot, cfg.Screen)
	if err != nil {
		return nil, err
	}

	exec := chain.NewExecutor(r.Ranker(cfg.Mode),
		chain.WithPolicy(cfg.policy()),
		chain.WithBudgets(cfg.TimeBudget, cfg.PerCandidateBudget),
		chain.WithClock(r.now),
	)
	logger.Debug("plan %s: %d variants on snapshot %s", plan.SourcePath, len(plan.Variants), tree.ID())
	return exec.Execute(tree, plan)
}

func truncate(cands []scoring.Candidate, n int) []scoring.Candidate {
	switch {
	case n < 0:
		return cands
	case n == 0:
		n = DefaultMaxCandidates
	}
	if len(cands) > n {
		return cands[:n]
	}
	return cands
}
