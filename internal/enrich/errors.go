package enrich

import (
	"fmt"
	"time"
)

// ErrNotFound is returned when no page or search result matches.
type ErrNotFound struct {
	Title string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Title)
}

// ErrRateLimit is returned when the encyclopedia signals rate limiting.
type ErrRateLimit struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}
