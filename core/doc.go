// Package core provides the foundational domain types and contracts used by
// brigade. It defines the abstractions for:
//
//   - Tasks (typed units of work moving through pending → in-progress → completed/failed)
//   - Agents (capability-declaring workers that turn a task into a finished task)
//   - Workflows (static step graphs with dependency edges and optional conditions)
//   - Knowledge entries and the pluggable KnowledgeStore they live in
//   - Task events emitted by the orchestrator
//
// The package keeps implementation concerns (scheduling, concrete agents,
// storage backends) out of scope, exposing small interfaces so orchestration
// and storage can be swapped independently.
package core
