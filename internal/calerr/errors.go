// Package calerr defines the error envelope shared by every calendar component.
package calerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
)

// ValidationError reports malformed canonical input, caught before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a resolved entity (account, calendar, default) that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// AuthError reports a failed token refresh for a linked account.
type AuthError struct {
	Provider  string
	AccountID string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s account %s: %v", e.Provider, e.AccountID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ProviderError reports a call the external service rejected or failed.
type ProviderError struct {
	Provider string
	Op       string
	Code     string
	Context  map[string]string
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Provider, e.Op)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Context[k])
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PartialFailureError reports accounts that failed during an aggregation.
// Failures is keyed by account id.
type PartialFailureError struct {
	Failures map[string]error
	Total    int
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if e.All() {
		return fmt.Sprintf("all %d accounts unreachable: %s", e.Total, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("%d of %d accounts unreachable: %s", len(e.Failures), e.Total, strings.Join(ids, ", "))
}

// All reports whether every account failed.
func (e *PartialFailureError) All() bool {
	return e.Total > 0 && len(e.Failures) >= e.Total
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// WrapProvider rewraps a raw failure from a service call as a ProviderError.
// Errors that are already part of the envelope pass through unchanged.
func WrapProvider(provider, op string, err error, kv ...string) error {
	if err == nil {
		return nil
	}
	var (
		pe *ProviderError
		ve *ValidationError
		ne *NotFoundError
		ae *AuthError
	)
	if errors.As(err, &pe) || errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &ae) {
		return err
	}
	var ctx map[string]string
	if len(kv) > 1 {
		ctx = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			ctx[kv[i]] = kv[i+1]
		}
	}
	return &ProviderError{Provider: provider, Op: op, Code: Code(err), Context: ctx, Err: err}
}

// CodedError is implemented by transport errors that carry a service error code.
type CodedError interface {
	ErrorCode() string
}

// Code extracts a best-effort error code from a failure.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if len(gerr.Errors) > 0 && gerr.Errors[0].Reason != "" {
			return strconv.Itoa(gerr.Code) + ":" + gerr.Errors[0].Reason
		}
		return strconv.Itoa(gerr.Code)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return ""
}

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsProviderError(err error) bool {
	var e *ProviderError
	return errors.As(err, &e)
}

func IsPartialFailure(err error) bool {
	var e *PartialFailureError
	return errors.As(err, &e)
}
