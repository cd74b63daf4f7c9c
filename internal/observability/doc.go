// Package observability records what each state-update cycle did as
// structured JSON Lines (JSONL) events and derives metrics on demand from
// that log. The compliance retry counter is also derived from it.
package observability
