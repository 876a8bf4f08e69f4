// Package harness runs scripted scheduler scenarios and checks their event
// traces.
//
// # Scenario Format
//
//	name: layout_set_supersedes_updates
//	description: "A layout selection obsoletes pending layout updates"
//	config:
//	  concurrency: 1
//	steps:
//	  - queue: {label: nodes, category: data-add}
//	  - queue: {label: relax, category: layout-update, progress: [{percent: 50}]}
//	  - queue: {label: force, category: layout-set, gate: g}
//	  - tick
//	  - await_running: force
//	  - release: g
//	  - wait
//	assertions:
//	  - type: start_order
//	    labels: [nodes, force]
//	  - type: completed_count
//	    category: layout-update
//	    count: 0
//
// Steps without arguments (tick, wait, enter_batch, exit_batch, pause,
// resume, clear) are bare strings. cancel, await_running and await_progress
// name an operation label; cancel_category names a category; release names
// a gate.
//
// # Determinism
//
// Micro-batches flush only on tick steps and batch ids come from a
// sequence, so a scenario that synchronizes on await_running,
// await_progress or wait before each step racing the executor produces the
// same trace on every run. Trace lines never include times or durations.
package harness
