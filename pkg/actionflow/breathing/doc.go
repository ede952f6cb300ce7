/*
Package breathing implements the global stress monitor that governs call
admission.

A Monitor keeps a rolling window of execution samples (latency and outcome),
bounded by both age and count. From the window it derives a stress value in
[0, 1]:

	stress = max(min(avgLatency/SlowThreshold, 1), errorRate)

Stress is 0 until MinSamples samples are in the window.

# Hysteresis

The monitor enters recuperation when stress reaches HighWater and leaves it
only once stress drops below LowWater. While recuperating, callers should
reject non-critical work.

# Cadence

Start runs a self-rearming evaluation loop on the injected clock. While calm
the loop runs every BaseRate + (MaxRate-BaseRate)*stress; while recuperating
it runs every RecoveryRate. Each evaluation ages samples out of the window, so
an idle system drifts back to calm.
*/
package breathing
