package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/logger"
	"github.com/devicelab-dev/uiresolve/pkg/rank"
	"github.com/devicelab-dev/uiresolve/pkg/safety"
)

// Default budgets.
const (
	DefaultTimeBudget         = 1200 * time.Millisecond
	DefaultPerCandidateBudget = 180 * time.Millisecond
)

// Executor runs plans against a tree.
type Executor struct {
	ranker       *rank.Ranker
	policy       rank.Policy
	timeBudget   time.Duration
	perCandidate time.Duration
	now          func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the gate used when a plan does not override it.
func WithPolicy(p rank.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithBudgets sets the default time budgets. Zero keeps the default.
func WithBudgets(total, perCandidate time.Duration) Option {
	return func(e *Executor) {
		if total > 0 {
			e.timeBudget = total
		}
		if perCandidate > 0 {
			e.perCandidate = perCandidate
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor that ranks with r.
func NewExecutor(r *rank.Ranker, opts ...Option) *Executor {
	e := &Executor{
		ranker:       r,
		policy:       rank.DefaultPolicy(),
		timeBudget:   DefaultTimeBudget,
		perCandidate: DefaultPerCandidateBudget,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// settings merges the plan's strategy config over the executor defaults.
func (e *Executor) settings(cfg StrategyConfig) (rank.Policy, time.Duration, time.Duration) {
	p := e.policy
	if cfg.MinConfidence != nil {
		p.MinConfidence = *cfg.MinConfidence
	}
	if cfg.RequireUniqueness != nil {
		p.RequireUniqueness = *cfg.RequireUniqueness
	}
	if cfg.ForbidContainers != nil {
		p.ForbidContainers = *cfg.ForbidContainers
	}
	total, per := e.timeBudget, e.perCandidate
	if cfg.TimeBudgetMS > 0 {
		total = time.Duration(cfg.TimeBudgetMS) * time.Millisecond
	}
	if cfg.PerCandidateBudgetMS > 0 {
		per = time.Duration(cfg.PerCandidateBudgetMS) * time.Millisecond
	}
	return p, total, per
}

// attempt is the outcome of one variant.
type attempt struct {
	outcome     core.Outcome
	reason      string
	matches     int
	confidence  float64
	bounds      core.Bounds
	suggestions []string
}

// Execute tries the plan's variants in order and stops at the first that
// resolves to a unique, safe target passing its checks. A variant that fails
// for any reason is recorded in the trail and the next one runs.
//
// When every variant fails, the result still carries the trail and the
// attempted ids, and the error's kind follows the last failure.
func (e *Executor) Execute(tree *hierarchy.Tree, plan *Plan) (*core.ExecutionResult, error) {
	if len(plan.Variants) == 0 {
		return nil, core.ErrInvalidSpec.WithMessage("plan has no variants")
	}

	policy, total, per := e.settings(plan.Strategy)
	screen := tree.Screen()
	if screen.IsZero() && plan.Context.Screen != nil {
		screen = core.Size{Width: plan.Context.Screen.Width, Height: plan.Context.Screen.Height}
	}

	start := e.now()
	res := &core.ExecutionResult{}
	var last *attempt

	for i, v := range plan.Order() {
		if spent := e.now().Sub(start); i > 0 && spent >= total {
			res.Trail = append(res.Trail, core.TrailEntry{
				VariantID: v.ID,
				Kind:      string(v.Kind),
				Outcome:   core.OutcomeBudgetExceeded,
				Reason:    fmt.Sprintf("time budget %s spent", total),
			})
			logger.Warn("chain: time budget %s spent after %d variants", total, i)
			break
		}

		began := e.now()
		a := e.attempt(tree, plan, v, policy, screen)
		elapsed := e.now().Sub(began)
		if a.outcome.IsSuccess() && elapsed > per {
			a.outcome = core.OutcomeBudgetExceeded
			a.reason = fmt.Sprintf("took %s, budget %s", elapsed, per)
		}

		res.Attempted = append(res.Attempted, v.ID)
		res.Trail = append(res.Trail, core.TrailEntry{
			VariantID:  v.ID,
			Kind:       string(v.Kind),
			Outcome:    a.outcome,
			Reason:     a.reason,
			Matches:    a.matches,
			Confidence: a.confidence,
			Elapsed:    elapsed,
		})

		if a.outcome.IsSuccess() {
			center := a.bounds.Center()
			bounds := a.bounds
			res.Success = true
			res.UsedVariant = v.ID
			res.MatchCount = a.matches
			res.FinalConfidence = a.confidence
			res.Coordinate = &center
			res.Bounds = &bounds
			res.Elapsed = e.now().Sub(start)
			logger.Info("chain: %s (%s) resolved %s at (%d,%d), confidence %.2f",
				v.ID, v.Kind, bounds, center.X, center.Y, a.confidence)
			return res, nil
		}

		logger.Debug("chain: %s (%s) %s: %s", v.ID, v.Kind, a.outcome, a.reason)
		last = &a
	}

	res.Elapsed = e.now().Sub(start)
	kind := core.KindNoCandidateAboveThreshold
	if last != nil {
		kind = last.outcome.ErrorKind()
		res.Suggestions = last.suggestions
	}
	res.ErrorReason = fmt.Sprintf("all %d attempted variants failed: %s", len(res.Attempted), strings.Join(res.TrailStrings(), " | "))
	logger.Error("chain: %s", res.ErrorReason)

	err := core.NewResolveError(kind, res.ErrorReason).
		WithDetails(map[string]interface{}{"attempted": res.Attempted, "trail": res.TrailStrings()}).
		WithSuggestions(res.Suggestions)
	return res, err
}

func (e *Executor) attempt(tree *hierarchy.Tree, plan *Plan, v *Variant, policy rank.Policy, screen core.Size) attempt {
	m, err := evaluate(tree, plan, v)
	if err != nil {
		return failed(err)
	}

	if m.direct != nil {
		if err := safety.ValidateBounds(*m.direct, screen); err != nil {
			return failed(err)
		}
		if err := safety.Validate(*m.direct, m.class, screen, policy.ForbidContainers); err != nil {
			return failed(err)
		}
		return attempt{outcome: core.OutcomeSuccess, matches: 1, confidence: v.StaticScore, bounds: *m.direct}
	}

	if len(m.inputs) == 0 {
		return attempt{outcome: core.OutcomeNoMatch, reason: m.note}
	}

	cands := e.ranker.Rank(tree, m.inputs, m.hints)
	if len(cands) == 0 {
		return attempt{outcome: core.OutcomeNoMatch, reason: "no candidate survived ranking"}
	}
	a := attempt{matches: len(cands), confidence: cands[0].Confidence}

	d, err := rank.Decide(cands, screen, policy)
	if err != nil {
		f := failed(err)
		f.matches, f.confidence = a.matches, a.confidence
		return f
	}

	if err := runChecks(tree, d.Winner.Node, checksFor(v)); err != nil {
		a.outcome = core.OutcomeCheckFailed
		a.reason = err.Error()
		return a
	}

	a.outcome = core.OutcomeSuccess
	a.bounds = d.Winner.Bounds
	a.confidence = d.Winner.Confidence
	return a
}

func failed(err error) attempt {
	a := attempt{outcome: outcomeOf(err), reason: err.Error()}
	var re *core.ResolveError
	if errors.As(err, &re) {
		a.suggestions = re.Suggestions
	}
	return a
}

// outcomeOf maps a variant error to its trail outcome. A missing container
// means the variant found nothing to search.
func outcomeOf(err error) core.Outcome {
	if core.KindOf(err) == core.KindNoContainerFound {
		return core.OutcomeNoMatch
	}
	return core.OutcomeFor(err)
}

// checksFor adds the implicit checks of the global index kind.
func checksFor(v *Variant) []LightCheck {
	if v.Kind != KindGlobalIndexWithStrongChecks {
		return v.Checks
	}
	checks := append([]LightCheck{}, v.Checks...)
	return append(checks, LightCheck{Type: CheckClickable}, LightCheck{Type: CheckEnabled})
}

func runChecks(tree *hierarchy.Tree, id hierarchy.NodeID, checks []LightCheck) error {
	n := tree.Node(id)
	for _, c := range checks {
		ok := true
		switch c.Type {
		case CheckClickable:
			ok = n.Clickable
		case CheckEnabled:
			ok = n.Enabled
		case CheckChildTextContains:
			ok = subtreeHasText(tree, id, []string{c.Value})
		case CheckChildTextContainsAny:
			ok = subtreeHasText(tree, id, c.Values)
		default:
			return fmt.Errorf("unknown check %q", c.Type)
		}
		if !ok {
			return fmt.Errorf("check %s failed", describeCheck(c))
		}
	}
	return nil
}

func subtreeHasText(tree *hierarchy.Tree, id hierarchy.NodeID, words []string) bool {
	nodes := append([]hierarchy.NodeID{id}, tree.Descendants(id)...)
	for _, x := range nodes {
		n := tree.Node(x)
		for _, w := range words {
			if w == "" {
				continue
			}
			if strings.Contains(n.Text, w) || strings.Contains(n.ContentDesc, w) {
				return true
			}
		}
	}
	return false
}

func describeCheck(c LightCheck) string {
	switch {
	case c.Value != "":
		return fmt.Sprintf("%s(%q)", c.Type, c.Value)
	case len(c.Values) > 0:
		return fmt.Sprintf("%s(%s)", c.Type, strings.Join(c.Values, ","))
	}
	return c.Type
}
