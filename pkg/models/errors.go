package models

import "errors"

// Error categories shared across the engine. Concrete failures wrap one of
// these sentinels so callers can classify with errors.Is.
var (
	// ErrNetwork marks transport failures; retryable by the caller.
	ErrNetwork = errors.New("network error")
	// ErrParse marks a malformed remote response.
	ErrParse = errors.New("parse error")
	// ErrStorage marks disk or database I/O failures.
	ErrStorage = errors.New("storage error")
	// ErrUnknownChart marks a requested OACI code not present in the last
	// fetched catalog.
	ErrUnknownChart = errors.New("unknown chart")
	// ErrNotFound marks a delete of an absent local entry.
	ErrNotFound = errors.New("not found")
)
