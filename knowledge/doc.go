// Package knowledge contains concrete KnowledgeStore implementations. The
// store interface and KnowledgeEntry type reside in the core package. Depend
// on core.KnowledgeStore in your code and select an implementation (the
// in-memory store below, or knowledge/redis) at wiring time.
package knowledge
