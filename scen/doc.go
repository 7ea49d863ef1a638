// Package scen runs batches of ecological simulation scenarios through an
// external EwE-style engine (Ecopath with Ecosim and Ecotracer).
//
// # Reading Guide
//
// Start with these three files to understand the batch pipeline:
//   - interface.go: ScenarioInterface, the user-facing facade (stage model,
//     bind parameters, run a table of scenarios, collect results)
//   - param_manager.go: the generated parameter catalog and how bindings are
//     batched into engine crossings
//   - runner.go: the per-scenario loop (apply row, run stage chain, collect)
//
// # Architecture
//
// The scen package orchestrates; the engine boundary and result plumbing
// live in sub-packages:
//   - scen/engine/: the Session interface to a live engine instance, typed
//     parameter fields, and an in-process reference engine
//   - scen/table/: the scenario table (one row per scenario, one column per
//     variable parameter)
//   - scen/results/: extractors over the engine's internal result storage,
//     per-variable stores, and the labeled ResultSet
//
// Engine sessions are stateful and non-reentrant: one session serves one
// goroutine, and a parallel run hands each worker a Recipe (worker.go) from
// which it rebuilds a private session over its own model-file copy. Workers
// share only the result stores, writing disjoint per-scenario windows.
//
// # Parameter model
//
// Every settable engine knob gets a generated name such as init_c_03_Cod
// (field prefix, zero-padded 1-based group index, group name). A parameter
// is either constant (one value for the whole batch), variable (read from a
// scenario table column per run), or unset (engine default). The Compositor
// fans bindings over the Ecosim and Ecotracer catalogs; a name only fails
// if no catalog recognizes it.
package scen
