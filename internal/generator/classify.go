package generator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/zyeon-ai/realtime-gateway/internal/llm"
)

// Outcome is the typed result category of a generate call.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeAuth         Outcome = "auth"
	OutcomeConnectivity Outcome = "connectivity"
	OutcomeGeneric      Outcome = "generic"
)

// Message returns the user-facing apology for a failure outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeRateLimited:
		return msgRateLimited
	case OutcomeInvalidInput:
		return msgInvalidInput
	case OutcomeAuth:
		return msgAuth
	case OutcomeConnectivity:
		return msgConnectivity
	default:
		return msgGeneric
	}
}

// Classify maps an upstream error onto an outcome. Provider status codes win
// over message matching.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	if status, ok := llm.HTTPStatus(err); ok {
		switch status {
		case http.StatusTooManyRequests:
			return OutcomeRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return OutcomeAuth
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return OutcomeInvalidInput
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeConnectivity
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit"), strings.Contains(msg, "rate limit"):
		return OutcomeRateLimited
	case strings.Contains(msg, "invalid"):
		return OutcomeInvalidInput
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "api key"):
		return OutcomeAuth
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"):
		return OutcomeConnectivity
	default:
		return OutcomeGeneric
	}
}

// Transient reports whether an error is worth retrying.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case OutcomeAuth, OutcomeInvalidInput:
		return false
	default:
		return true
	}
}
