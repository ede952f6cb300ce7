/*
Package actionflow provides an in-process action/event orchestrator.

# Overview

Callers register channels, attach one handler per channel and call
channels by id with a payload. Every call runs through three phases:

  - protection: block, throttle, debounce and global recuperation
  - processing: required, schema, selector, condition, transform and
    change detection, in that order
  - dispatch: either the handler runs now, or the payload is handed to the
    scheduler for delayed or repeated execution

A handler may return a Link to start a call on another channel.

# Basic Usage

	engine := actionflow.New()
	defer engine.Close()

	_ = engine.Action(actionflow.Action{ID: "greet", Required: actionflow.RequiredNonEmpty})
	_ = engine.On("greet", func(ctx actionflow.Context, p any) (any, error) {
	    return "hello " + p.(string), nil
	})

	resp := engine.Call(context.Background(), "greet", "ada")
	fmt.Println(resp.Payload) // "hello ada"

# Responses

Call never returns an error value; the Response says what happened. OK is
true when the handler ran or the call was scheduled. A false OK with Error
unset is a soft rejection (throttled, debounced, condition not met); Error
set means a hard failure. Response.Err holds a typed error that works with
errors.Is against the sentinels in this package:

	resp := engine.Call(ctx, "save", doc)
	var te *actionflow.ThrottleError
	if errors.As(resp.Err, &te) {
	    time.Sleep(te.Remaining)
	}

# Plans

Action compiles the configuration into a Plan: the talents to run in
canonical order and a classification (zero-overhead, fast-path or full).
Plans are cached per channel and keyed by an xxhash fingerprint of the
configuration, so registering the same configuration again reuses the plan.

# Scheduling

A channel with Delay, Interval or Repeat is scheduled instead of
dispatched. Intervals are measured between execution starts; by default
executions may overlap when a handler outlives the interval. Set Overlap to
schedule.OverlapSkip or schedule.OverlapQueue to change that.

# Breathing

Every dispatch feeds latency and failure into a global breathing monitor.
When stress reaches the high-water mark the engine recuperates: only
PriorityCritical channels run until stress falls below the low-water mark.

# Configuration

Channels can be declared in YAML or JSON and applied with ApplyManifest or
kept in sync with a file through WatchManifest. See package config.

# Thread Safety

Engine is safe for concurrent use. Calls to the same channel may complete
out of order; the payload store keeps the last write.
*/
package actionflow
