package model

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FetchError is returned when a page could not be retrieved. Target is the
// version label or the index target of the page.
type FetchError struct {
	Product    Product
	Target     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s %s", e.Product, e.Target)
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: http status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports transient failures: timeouts, network errors,
// throttling and server errors.
func (e *FetchError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	return false
}

// NotFound reports if the page does not exist upstream.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// UnknownVersionError is returned when a version label is not in the
// catalog of its product.
type UnknownVersionError struct {
	Product Product
	Label   string
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("unknown %s version %q", e.Product, e.Label)
}

// InvalidRangeError is returned for comparison ranges whose endpoints are
// unknown or not in ascending order.
type InvalidRangeError struct {
	Product Product
	From    string
	To      string
	Reason  string
	Err     error
}

func (e *InvalidRangeError) Error() string {
	msg := fmt.Sprintf("invalid %s range %s..%s", e.Product, e.From, e.To)
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *InvalidRangeError) Unwrap() error {
	return e.Err
}

// ValidationError is returned for malformed user input.
type ValidationError struct {
	Field      string
	Value      string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (did you mean %s?)", msg, e.Suggestion)
	}
	return msg
}
