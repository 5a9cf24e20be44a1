// Package storage keeps a journal of chat delivery failures.
//
// The journal is diagnostics only: entries are never replayed or retried.
package storage
