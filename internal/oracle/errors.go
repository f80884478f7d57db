// internal/oracle/errors.go
package oracle

import (
	"errors"
	"fmt"
)

// ErrNotReady signals a poll that returned before the answer exists. It is
// the only non-terminal oracle condition; callers keep polling.
var ErrNotReady = errors.New("oracle: answer not ready")

// FailureReason classifies a terminal oracle failure.
type FailureReason string

const (
	// ReasonUnsolvable covers answers the oracle refused to produce.
	ReasonUnsolvable FailureReason = "unsolvable"
	// ReasonInvalidCredential covers rejected or banned API keys.
	ReasonInvalidCredential FailureReason = "invalid-credential"
	// ReasonZeroBalance covers an exhausted account.
	ReasonZeroBalance FailureReason = "zero-balance"
	// ReasonRateLimited covers temporary refusals to accept work.
	ReasonRateLimited FailureReason = "rate-limited"
	// ReasonTimeout covers answers that did not arrive within the window.
	ReasonTimeout FailureReason = "timeout"
	// ReasonTransport covers network and HTTP level failures.
	ReasonTransport FailureReason = "transport"
	// ReasonMalformed covers responses that could not be interpreted.
	ReasonMalformed FailureReason = "malformed"
)

// SolveError is a terminal oracle failure carrying its classification. The
// attempt engine keys retry decisions off Reason, not the message.
type SolveError struct {
	Reason FailureReason
	// Code is the wire error code when the API sent one (e.g.
	// ERROR_ZERO_BALANCE), empty for local failures.
	Code   string
	Detail string
}

func (e *SolveError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("oracle: %s (%s): %s", e.Reason, e.Code, e.Detail)
	}
	return fmt.Sprintf("oracle: %s: %s", e.Reason, e.Detail)
}

// Retryable reports whether a fresh attempt could plausibly succeed.
// Credential and balance failures fail every subsequent attempt identically,
// so retrying them only burns time.
func (e *SolveError) Retryable() bool {
	switch e.Reason {
	case ReasonInvalidCredential, ReasonZeroBalance:
		return false
	default:
		return true
	}
}

// apiCodeReasons maps wire error codes to failure reasons. Codes not listed
// classify as unsolvable so the attempt budget, not the classifier, bounds
// how often they are retried.
var apiCodeReasons = map[string]FailureReason{
	"ERROR_WRONG_USER_KEY":           ReasonInvalidCredential,
	"ERROR_KEY_DOES_NOT_EXIST":       ReasonInvalidCredential,
	"ERROR_IP_NOT_ALLOWED":           ReasonInvalidCredential,
	"IP_BANNED":                      ReasonInvalidCredential,
	"ERROR_ZERO_BALANCE":             ReasonZeroBalance,
	"ERROR_NO_SLOT_AVAILABLE":        ReasonRateLimited,
	"MAX_USER_TURN":                  ReasonRateLimited,
	"ERROR_CAPTCHA_UNSOLVABLE":       ReasonUnsolvable,
	"ERROR_BAD_PARAMETERS":           ReasonMalformed,
	"ERROR_WRONG_CAPTCHA_ID":         ReasonMalformed,
	"ERROR_ZERO_CAPTCHA_FILESIZE":    ReasonMalformed,
	"ERROR_TOO_BIG_CAPTCHA_FILESIZE": ReasonMalformed,
}

// newAPIError classifies an error code returned in an API envelope.
func newAPIError(code, detail string) *SolveError {
	reason, ok := apiCodeReasons[code]
	if !ok {
		reason = ReasonUnsolvable
	}
	if detail == "" {
		detail = "oracle rejected the request"
	}
	return &SolveError{Reason: reason, Code: code, Detail: detail}
}
