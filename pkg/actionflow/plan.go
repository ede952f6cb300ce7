package actionflow

import (
	"github.com/randalmurphal/actionflow/pkg/actionflow/expr"
)

// Talent names one processing stage.
type Talent string

// Talents in canonical execution order.
const (
	TalentRequired      Talent = "required"
	TalentSchema        Talent = "schema"
	TalentSelector      Talent = "selector"
	TalentCondition     Talent = "condition"
	TalentTransform     Talent = "transform"
	TalentDetectChanges Talent = "detectChanges"
)

// talentOrder is the canonical order. Plans list talents in this order.
var talentOrder = []Talent{
	TalentRequired,
	TalentSchema,
	TalentSelector,
	TalentCondition,
	TalentTransform,
	TalentDetectChanges,
}

// PlanKind classifies how much work a call needs before dispatch.
type PlanKind int

// Plan kinds.
const (
	// PlanZeroOverhead runs no talents.
	PlanZeroOverhead PlanKind = iota
	// PlanFastPath runs exactly one cheap talent.
	PlanFastPath
	// PlanFull runs the talent list in order.
	PlanFull
)

// String returns the kind name.
func (k PlanKind) String() string {
	switch k {
	case PlanZeroOverhead:
		return "zero-overhead"
	case PlanFastPath:
		return "fast-path"
	case PlanFull:
		return "full"
	default:
		return "unknown"
	}
}

// Plan is the compiled form of an Action. It is immutable and shared
// between calls.
type Plan struct {
	ChannelID string
	Talents   []Talent
	Kind      PlanKind
	// Fingerprint hashes the normalized configuration.
	Fingerprint uint64
	// Required is the effective required mode, including the one a schema implies.
	Required RequiredMode
	// Protected is true when block, throttle or debounce is set.
	Protected bool
	// Scheduled is true when calls hand off to the scheduler.
	Scheduled bool

	when *expr.Program
}

// Has reports whether the plan runs talent t.
func (p *Plan) Has(t Talent) bool {
	for _, have := range p.Talents {
		if have == t {
			return true
		}
	}
	return false
}

// CompilerStats counts compiler work.
type CompilerStats struct {
	// Compiles is the number of plans built.
	Compiles int64
	// Reused is the number of compilations answered from the cache because
	// the fingerprint had not changed.
	Reused int64
	// Failures is the number of rejected configurations.
	Failures int64
	// Cached is the number of plans currently cached.
	Cached int
}
