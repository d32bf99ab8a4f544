// Package llm provides the OpenRouter chat client used as a reasoning
// backend, the shared retry policy for reasoning calls, and helpers for
// decoding JSON out of model output.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Reason: send one system/user prompt pair, receive raw text.
// Client.HealthCheck: verify API key and model availability.
// Backoff.Do: retry a reasoning call on transient failure.
// DecodeLLMJSON: tolerant JSON decode (code fences, surrounding prose).
//
// # Retry Behaviour
//
// Reason makes exactly one request. HTTP 408/429/5xx responses, empty
// completions and network timeouts are tagged services.ErrTransient.
// Backoff.Do retries those with exponential delays (base 1s, max 10s, three
// attempts by default), honouring Retry-After. Context cancellation aborts
// retries immediately.
package llm
