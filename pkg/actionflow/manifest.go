package actionflow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/actionflow/pkg/actionflow/config"
	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// Functions resolves the function names used in a manifest.
type Functions struct {
	Handlers   map[string]Handler
	Schemas    map[string]SchemaFunc
	Selectors  map[string]SelectorFunc
	Conditions map[string]ConditionFunc
	Transforms map[string]TransformFunc
}

func lookup[F any](kind, name string, m map[string]F) (F, error) {
	var zero F
	if name == "" {
		return zero, nil
	}
	fn, ok := m[name]
	if !ok {
		return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidAction, kind, name)
	}
	return fn, nil
}

// ActionFromSpec converts a manifest channel into an Action.
func ActionFromSpec(spec config.ChannelSpec, fns Functions) (Action, error) {
	a := Action{
		ID:            spec.ID,
		Block:         spec.Block,
		Throttle:      spec.Throttle,
		Debounce:      spec.Debounce,
		MaxWait:       spec.MaxWait,
		Required:      RequiredMode(spec.Required),
		When:          spec.When,
		DetectChanges: spec.DetectChanges,
		Delay:         spec.Delay,
		Interval:      spec.Interval,
		Repeat:        spec.Repeat,
		Overlap:       schedule.OverlapPolicy(spec.Overlap),
		Priority:      Priority(spec.Priority),
		Payload:       spec.Payload,
	}

	var errs []error
	var err error
	if a.Schema, err = lookup("schema", spec.Schema, fns.Schemas); err != nil {
		errs = append(errs, err)
	}
	if a.Selector, err = lookup("selector", spec.Selector, fns.Selectors); err != nil {
		errs = append(errs, err)
	}
	if a.Condition, err = lookup("condition", spec.Condition, fns.Conditions); err != nil {
		errs = append(errs, err)
	}
	if a.Transform, err = lookup("transform", spec.Transform, fns.Transforms); err != nil {
		errs = append(errs, err)
	}
	if _, err := lookup("handler", spec.Handler, fns.Handlers); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Action{}, fmt.Errorf("channel %s: %w", spec.ID, errors.Join(errs...))
	}
	return a, nil
}

// ApplyManifest registers every channel in m and its named handler.
// Channels that fail are reported together; the others are registered.
func (e *Engine) ApplyManifest(m config.Manifest, fns Functions) error {
	var errs []error
	for _, spec := range m.Channels {
		a, err := ActionFromSpec(spec, fns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.Action(a); err != nil {
			errs = append(errs, err)
			continue
		}
		if spec.Handler != "" {
			if err := e.On(spec.ID, fns.Handlers[spec.Handler]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	e.logger.Info("manifest applied",
		slog.Int("channels", len(m.Channels)),
		slog.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

// WatchManifest applies the manifest at path and re-applies it whenever the
// file changes. Channels dropped from the file are forgotten. Nothing is
// applied when the watch cannot be started. The watcher stops when the
// engine is closed.
func (e *Engine) WatchManifest(path string, fns Functions) (*config.Watcher, error) {
	w, err := config.NewWatcher(path, config.WithWatcherLogger(e.logger))
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		prev = map[string]bool{}
	)
	apply := func(m config.Manifest) error {
		mu.Lock()
		defer mu.Unlock()

		next := make(map[string]bool, len(m.Channels))
		for _, ch := range m.Channels {
			next[ch.ID] = true
		}
		for id := range prev {
			if !next[id] {
				e.Forget(id)
			}
		}
		prev = next
		return e.ApplyManifest(m, fns)
	}

	w.OnChange(func(m config.Manifest) {
		if err := apply(m); err != nil {
			e.logger.Warn("manifest partially applied", slog.String("path", w.Path()), slog.String("error", err.Error()))
		}
	})
	if err := w.Start(); err != nil {
		_ = w.Close()
		return nil, err
	}

	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	if e.closed.Load() {
		_ = w.Close()
		return nil, ErrClosed
	}
	if err := apply(w.Current()); err != nil {
		e.logger.Warn("manifest partially applied", slog.String("path", w.Path()), slog.String("error", err.Error()))
	}
	e.watchers = append(e.watchers, w)
	return w, nil
}
