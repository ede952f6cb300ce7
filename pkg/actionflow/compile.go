package actionflow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/randalmurphal/actionflow/pkg/actionflow/expr"
	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// Compiler turns Actions into Plans and caches them by channel id.
// It is safe for concurrent use.
type Compiler struct {
	exprs *expr.Compiler

	mu    sync.Mutex
	cache map[string]*Plan
	stats CompilerStats
}

// NewCompiler creates a Compiler. A nil expression compiler uses the
// built-in operators only.
func NewCompiler(exprs *expr.Compiler) *Compiler {
	if exprs == nil {
		exprs = expr.New()
	}
	return &Compiler{
		exprs: exprs,
		cache: make(map[string]*Plan),
	}
}

// Compile validates a and returns its plan. Multiple problems are reported
// together in a *CompileError.
//
// If the cached plan for a.ID has the same fingerprint it is returned as is;
// otherwise a new plan replaces it. A failed compilation evicts the cached
// plan so a stale one is never served.
func (c *Compiler) Compile(a Action) (*Plan, error) {
	fp := Fingerprint(a)

	c.mu.Lock()
	if cached, ok := c.cache[a.ID]; ok && cached.Fingerprint == fp {
		c.stats.Reused++
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	plan, err := c.build(a, fp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stats.Failures++
		delete(c.cache, a.ID)
		return nil, err
	}
	c.stats.Compiles++
	c.cache[a.ID] = plan
	return plan, nil
}

// Cached returns the cached plan for id.
func (c *Compiler) Cached(id string) (*Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.cache[id]
	return p, ok
}

// Invalidate drops the cached plan for id.
func (c *Compiler) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, id)
}

// Reset drops every cached plan. Counters are kept.
func (c *Compiler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*Plan)
}

// Stats returns the compiler counters.
func (c *Compiler) Stats() CompilerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Cached = len(c.cache)
	return s
}

func (c *Compiler) build(a Action, fp uint64) (*Plan, error) {
	errs := validateAction(a)

	var when *expr.Program
	if strings.TrimSpace(a.When) != "" {
		p, err := c.exprs.Compile(a.When)
		if err != nil {
			errs = append(errs, fmt.Errorf("when: %w", err))
		}
		when = p
	}

	if len(errs) > 0 {
		return nil, &CompileError{ChannelID: a.ID, Errs: errs}
	}

	required := a.Required
	if a.Schema != nil && required == RequiredOff {
		required = RequiredDefined
	}

	present := map[Talent]bool{
		TalentRequired:      required != RequiredOff,
		TalentSchema:        a.Schema != nil,
		TalentSelector:      a.Selector != nil,
		TalentCondition:     a.Condition != nil || when != nil,
		TalentTransform:     a.Transform != nil,
		TalentDetectChanges: a.DetectChanges,
	}
	talents := make([]Talent, 0, len(talentOrder))
	for _, t := range talentOrder {
		if present[t] {
			talents = append(talents, t)
		}
	}

	return &Plan{
		ChannelID:   a.ID,
		Talents:     talents,
		Kind:        classify(talents),
		Fingerprint: fp,
		Required:    required,
		Protected:   a.protected(),
		Scheduled:   a.scheduled(),
		when:        when,
	}, nil
}

func classify(talents []Talent) PlanKind {
	switch len(talents) {
	case 0:
		return PlanZeroOverhead
	case 1:
		switch talents[0] {
		case TalentRequired, TalentSelector, TalentCondition:
			return PlanFastPath
		}
	}
	return PlanFull
}

func validateAction(a Action) []error {
	var errs []error

	switch {
	case strings.TrimSpace(a.ID) == "":
		errs = append(errs, errors.New("id cannot be empty"))
	case strings.ContainsAny(a.ID, " \t\n\r"):
		errs = append(errs, fmt.Errorf("id %q cannot contain whitespace", a.ID))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"throttle", a.Throttle},
		{"debounce", a.Debounce},
		{"max wait", a.MaxWait},
		{"delay", a.Delay},
		{"interval", a.Interval},
	}
	for _, d := range durations {
		if d.d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s %s", schedule.ErrInvalidDuration, d.name, d.d))
		}
	}

	if a.MaxWait > 0 {
		if a.Debounce <= 0 {
			errs = append(errs, errors.New("max wait requires debounce"))
		} else if a.MaxWait < a.Debounce {
			errs = append(errs, fmt.Errorf("max wait %s is shorter than debounce %s", a.MaxWait, a.Debounce))
		}
	}

	r := a.Repeat
	switch {
	case r.IsSet() && !r.IsInfinite() && r.Count() < 0:
		errs = append(errs, fmt.Errorf("%w: negative count %d", schedule.ErrInvalidRepeat, r.Count()))
	case (r.IsInfinite() || r.Count() > 1) && a.Interval <= 0:
		errs = append(errs, fmt.Errorf("%w: repeat %s requires an interval", schedule.ErrInvalidRepeat, r))
	}

	if _, err := schedule.ParseOverlap(string(a.Overlap)); err != nil {
		errs = append(errs, err)
	}
	if !a.Priority.valid() {
		errs = append(errs, fmt.Errorf("unknown priority %q", a.Priority))
	}
	if !a.Required.valid() {
		errs = append(errs, fmt.Errorf("unknown required mode %q", a.Required))
	}
	return errs
}

// Fingerprint hashes the normalized configuration of a. Functions contribute
// their code identity, so two closures over the same function literal hash
// alike.
func Fingerprint(a Action) uint64 {
	h := xxhash.New()
	var buf [8]byte

	str := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	num := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	flag := func(b bool) {
		if b {
			num(1)
		} else {
			num(0)
		}
	}
	fn := func(f any) {
		v := reflect.ValueOf(f)
		if !v.IsValid() || v.IsNil() {
			num(0)
			return
		}
		num(uint64(v.Pointer()))
	}

	str(a.ID)
	flag(a.Block)
	num(uint64(a.Throttle))
	num(uint64(a.Debounce))
	num(uint64(a.MaxWait))
	num(uint64(a.Delay))
	num(uint64(a.Interval))
	str(a.Repeat.String())
	str(string(a.Overlap))
	str(string(a.Priority))
	str(string(a.Required))
	flag(a.DetectChanges)
	str(strings.TrimSpace(a.When))
	fn(a.Schema)
	fn(a.Selector)
	fn(a.Condition)
	fn(a.Transform)

	return h.Sum64()
}
