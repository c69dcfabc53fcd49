// Package dispatch chooses, per call, between the legacy per-connector
// adapter path and the shared RPC-based unified connector service, as part
// of a gradual, reversible migration. The decision itself is a pure
// function of a stored rollout fraction and one injected random draw; any
// failure to resolve, parse or connect falls back to the legacy path
// silently. Refer to the translation table in translate.go for the RPC
// boundary.
package dispatch

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/payment-switch/internal/domain"
)

// Path is the chosen execution path.
type Path string

const (
	PathLegacy  Path = "legacy"
	PathUnified Path = "unified"
)

// RolloutRepository resolves the stored rollout fraction for a key. The
// value is stored as a string so a malformed entry can be detected and
// treated as "legacy" rather than crashing the call.
type RolloutRepository interface {
	Fraction(key string) (string, bool)
}

// Input is the four-tuple a decision is derived from.
type Input struct {
	MerchantID    string
	Connector     string
	PaymentMethod domain.PaymentMethodKind
	Flow          domain.Flow
	TestMode      bool
}

// Key derives the configuration key for the rollout fraction lookup.
func (in Input) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s", in.MerchantID, in.Connector, in.PaymentMethod, in.Flow)
}

// GuardRule is a compiled eligibility expression evaluated before the
// random draw; any rule evaluating false pins the call to the legacy path.
type GuardRule struct {
	Name       string
	Expression string
}

// Decider implements the rollout decision.
type Decider struct {
	rollouts RolloutRepository
	// draw returns a uniformly distributed value in [0,1). Injecting it
	// keeps the decision independently unit-testable.
	draw   func() float64
	guards []compiledGuard
}

type compiledGuard struct {
	name string
	expr *govaluate.EvaluableExpression
}

// NewDecider creates a Decider. A nil draw uses math/rand.
func NewDecider(rollouts RolloutRepository, draw func() float64, guards []GuardRule) (*Decider, error) {
	if rollouts == nil {
		panic("rollout repository cannot be nil")
	}
	if draw == nil {
		draw = rand.Float64
	}
	compiled := make([]compiledGuard, 0, len(guards))
	for _, g := range guards {
		if g.Expression == "" {
			return nil, fmt.Errorf("dispatch: guard rule %q has an empty expression", g.Name)
		}
		expr, err := govaluate.NewEvaluableExpression(g.Expression)
		if err != nil {
			return nil, fmt.Errorf("dispatch: failed to compile guard rule %q: %w", g.Name, err)
		}
		compiled = append(compiled, compiledGuard{name: g.Name, expr: expr})
	}
	return &Decider{rollouts: rollouts, draw: draw, guards: compiled}, nil
}

// Decide returns the execution path for one call. It never fails: every
// malformed or missing input degrades to the legacy path.
func (d *Decider) Decide(in Input) Path {
	params := map[string]any{
		"merchant_id":    in.MerchantID,
		"connector":      in.Connector,
		"payment_method": string(in.PaymentMethod),
		"flow":           string(in.Flow),
		"test_mode":      in.TestMode,
	}
	for _, g := range d.guards {
		result, err := g.expr.Evaluate(params)
		if err != nil {
			log.Printf("dispatch: guard rule %q evaluation failed, staying on legacy: %v", g.name, err)
			return PathLegacy
		}
		allowed, ok := result.(bool)
		if !ok || !allowed {
			return PathLegacy
		}
	}

	raw, ok := d.rollouts.Fraction(in.Key())
	if !ok {
		return PathLegacy
	}
	fraction, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("dispatch: malformed rollout fraction %q for key %s, staying on legacy", raw, in.Key())
		return PathLegacy
	}
	if fraction <= 0 {
		return PathLegacy
	}
	if d.draw() < fraction {
		return PathUnified
	}
	return PathLegacy
}

// MapRollouts is a map-backed RolloutRepository.
type MapRollouts map[string]string

func (m MapRollouts) Fraction(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}
