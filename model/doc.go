// Package model defines the provider-agnostic abstractions for obtaining text
// completions from language models.
//
// Providers (Anthropic, OpenAI) implement the Model interface in their own
// subpackages so agents stay decoupled from vendor SDKs. Complete is the
// synchronous helper most callers want; MockModel serves tests and examples.
package model
