// Package types defines the core data model of the cognitive engine:
// percepts, agent outputs, critiques, conflicts, broadcast items,
// neuromodulator state and the unified error type.
//
// =============================================================================
// This is the lowest-level package with no internal dependencies. Every
// other package (perception, reasoners, gating, workspace, memory, engine)
// imports it, so nothing here may import from the rest of the module.
// =============================================================================
package types
