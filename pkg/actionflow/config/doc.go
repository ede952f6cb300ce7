/*
Package config loads engine settings and channel manifests from YAML or JSON.

# Accessors

Config wraps a map[string]any and returns the supplied default when a key is
missing or has the wrong type:

	cfg := config.New(map[string]any{"throttle": 100, "when": "ready"})
	cfg.Duration("throttle", 0) // 100ms
	cfg.String("when", "")      // "ready"

Durations accept time.ParseDuration strings ("250ms", "2s") or numbers,
which are read as milliseconds. Sub and Configs descend into nested maps and
lists of maps.

# Manifests

A manifest declares breathing thresholds, the payload history size and a
list of channels. Functions (handlers, selectors, transforms) are named in
the file and resolved by the engine:

	m, err := config.LoadManifest("channels.yaml")

String values may reference environment variables as ${NAME} or
${NAME:-default}. LoadManifest fails when a referenced variable is unset and
has no default. Expand applies the same substitution with any Lookup.

# Hot Reload

Watcher keeps the last valid manifest and reloads it when the file is
written or replaced:

	w, err := config.NewWatcher("channels.yaml")
	w.OnChange(func(m config.Manifest) { ... })
	err = w.Start()
	defer w.Close()

A manifest that fails to parse is logged and ignored.
*/
package config
