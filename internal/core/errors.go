package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrNotConfigured = errors.New("not configured")
	ErrInvalidDate   = errors.New("invalid date")
)

// InvalidInputError reports a line item whose values can't be normalized,
// e.g. a negative amount. It matches ErrInvalidInput with errors.Is.
type InvalidInputError struct {
	SubscriptionID string
	ItemID         string
	Field          string
	Reason         string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: subscription %q item %q field %s: %s", e.SubscriptionID, e.ItemID, e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// MalformedRecordError reports a provider record that failed shape
// validation. Callers skip the record and keep going.
type MalformedRecordError struct {
	SubscriptionID string
	ItemID         string
	Reason         string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: subscription %q item %q: %s", e.SubscriptionID, e.ItemID, e.Reason)
}

// UpstreamFetchError wraps a failed call to a third-party API.
type UpstreamFetchError struct {
	Resource string
	Err      error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// FetchErrors collects every upstream failure of one request.
type FetchErrors []*UpstreamFetchError

func (fe FetchErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, e := range fe {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Resources lists the names of the failed fetches.
func (fe FetchErrors) Resources() []string {
	out := make([]string, 0, len(fe))
	for _, e := range fe {
		out = append(out, e.Resource)
	}
	return out
}

func (fe FetchErrors) Unwrap() []error {
	out := make([]error, 0, len(fe))
	for _, e := range fe {
		out = append(out, e)
	}
	return out
}
