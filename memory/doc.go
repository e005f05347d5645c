// Package memory extracts durable memories from conversation text with a
// language model. Extractor issues a single completion per call, bounded by
// a CallLimiter, and parses the reply tolerantly.
package memory
