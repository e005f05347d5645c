// Package agent contains the shared agent base and concrete agents that plug
// into the orchestrator.
//
// BaseAgent supplies identity, the default capability predicate, knowledge
// store helpers and logging. Embed it and implement Process to satisfy
// core.Agent:
//
//	type Summarizer struct{ agent.BaseAgent }
//
//	func (s *Summarizer) Process(ctx context.Context, t core.Task) (core.Task, error) {
//		return s.Complete(t, summarize(t.Context.GetString("text"))), nil
//	}
//
// Concrete agents:
//   - FuncAgent wraps a closure; handy for tests and ad-hoc work
//   - StrategyAgent scores business questions by keyword category
//   - AllergenAgent flags allergens in menu ingredients
//   - MemoryAgent extracts memories from conversations via a model
//
// Agents keep CanProcess pure and restrict side effects to knowledge store
// writes. Returning an error from Process fails the task; the orchestrator
// records the message in the task result.
package agent
