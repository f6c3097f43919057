// Package upstream is the HTTP client for the assistant-response API.
//
// It layers a retry policy over two client modes: a shared pooled client
// for non-streaming calls, and a fresh per-request client for streaming
// calls (half-closed pooled connections accumulate across network
// transitions, so streaming requests also set Connection: close). A 403
// forces a credential refresh, 429 and 5xx back off exponentially, and
// transport failures are classified into retryable and terminal
// categories with user-facing guidance.
package upstream
