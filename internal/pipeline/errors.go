package pipeline

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an absent record at the source: a sparse id, a delisted
// entry. It is an expected outcome, not a failure; the driver advances.
var ErrNotFound = errors.New("not found at source")

// ErrAmbiguousMatch marks a lookup that resolved to several equally good
// candidates. Never auto-resolved by guessing; surfaced as a skip for manual
// follow-up.
var ErrAmbiguousMatch = errors.New("ambiguous match")

// FetchError is a network failure or non-2xx response. Retryable with
// bounded backoff.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch %s: status %d", e.Source, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is source markup or text the pipeline could not interpret. Not
// retryable: the markup will not change on a retry.
type ParseError struct {
	Source string
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s: parse: %s: %q", e.Source, e.Reason, e.Input)
	}
	return fmt.Sprintf("%s: parse: %s", e.Source, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is worth another attempt. Only fetch
// failures qualify; parse failures, absent records and ambiguity are final.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
