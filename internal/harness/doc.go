// Package harness runs cycle-by-cycle scenarios against compiled pipelines.
//
// A scenario drives a pipeline on a manual clock: each step may change
// constant sources, send remote-control values, advance time, run one or
// more cycles and check the values delivered to outputs. The deliveries of
// every cycle form a trace, which can be checked with assertions or compared
// against a golden file.
//
// # Scenario Format
//
//	name: servo_arming
//	description: "Arming hands the servo to the throttle"
//	pipeline: ../pipelines/servo      # directory holding .cue files
//	pipeline_name: servo              # needed when the directory has several
//	steps:
//	  - expect: { servo: 1000 }
//	  - set: { arm: 1 }               # constant sources
//	    remote: { throttle: 0.8 }     # remote sources, sent over the protocol
//	    advance_ms: 20                # per cycle, before it runs
//	    repeat: 3                     # cycles to run (default 1)
//	    expect: { servo: 1800 }       # checked after the last cycle
//	assertions:
//	  - type: trace_order
//	    output: servo
//	    values: [1000, 1800, 1000]
//
// # Assertion Types
//
//   - trace_contains: the output was delivered value at least once
//   - trace_order: the output was delivered values in this order, not
//     necessarily consecutively
//   - trace_count: the output was delivered value exactly count times
//   - final_state: the last value of each listed output
//
// # Determinism
//
// The clock starts at 0 and only moves when a step advances it. Outputs
// using the influx sink are delivered to a log sink instead, and record
// sinks write to an in-memory database, so a scenario never touches the
// network or the filesystem beyond reading its pipeline.
//
// # Golden Files
//
// RunWithGolden writes the trace as canonical JSON lines, one delivery per
// line, and compares it with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
