// Package failure classifies per-event errors into stable categories that
// logs, events, and tests can match on.
package failure

import (
	"context"
	"errors"
	"fmt"
)

const (
	ErrorInvalidPayload  = "invalid_payload"
	ErrorDeliveryFailed  = "delivery_failed"
	ErrorDeliveryTimeout = "delivery_timeout"
	ErrorNoRoute         = "no_route"
	ErrorUpstream        = "upstream"
)

// Error is a categorized dispatch failure.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Category, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	default:
		return e.Category
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a categorized error without a cause.
func New(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// Wrap attaches a category to err. A nil err stays nil.
func Wrap(category string, detail string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Detail: detail, Err: err}
}

// InvalidPayload reports a reply that must not be sent.
func InvalidPayload(detail string) error {
	return New(ErrorInvalidPayload, detail)
}

// CategoryFromError returns the category of err, or "" for nil.
//
// Uncategorized errors count as delivery failures; deadline errors as timeouts.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		if categorized.Category == ErrorDeliveryFailed && errors.Is(categorized.Err, context.DeadlineExceeded) {
			return ErrorDeliveryTimeout
		}
		return categorized.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorDeliveryTimeout
	}

	return ErrorDeliveryFailed
}

// Is reports whether err carries the given category.
func Is(err error, category string) bool {
	return err != nil && CategoryFromError(err) == category
}
