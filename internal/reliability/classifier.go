package reliability

import (
	"net/http"
	"strings"
)

// StatusClass is the coarse failure class of a provider call.
type StatusClass string

const (
	ClassRateLimited StatusClass = "rate_limited"
	ClassBadRequest  StatusClass = "bad_request"
	ClassNotFound    StatusClass = "not_found"
	ClassUnavailable StatusClass = "server_unavailable"
	ClassOther       StatusClass = "other"
)

// ClassifyHTTPStatus maps an HTTP status code onto a StatusClass.
func ClassifyHTTPStatus(code int) StatusClass {
	switch code {
	case http.StatusTooManyRequests:
		return ClassRateLimited
	case http.StatusBadRequest:
		return ClassBadRequest
	case http.StatusNotFound:
		return ClassNotFound
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ClassUnavailable
	default:
		return ClassOther
	}
}

// ClassifyStatusName maps canonical RPC status names and common provider
// error types onto a StatusClass.
func ClassifyStatusName(name string) StatusClass {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "resource_exhausted", "rate_limited", "rate_limit_exceeded", "too_many_requests":
		return ClassRateLimited
	case "invalid_argument", "failed_precondition", "invalid_request_error", "bad_request":
		return ClassBadRequest
	case "not_found", "model_not_found":
		return ClassNotFound
	case "unavailable", "internal", "server_error", "overloaded", "service_unavailable":
		return ClassUnavailable
	default:
		return ClassOther
	}
}

// IsFallbackEligible reports whether a failure of this class should be
// handed to the secondary provider.
func IsFallbackEligible(c StatusClass) bool {
	switch c {
	case ClassRateLimited, ClassBadRequest, ClassNotFound, ClassUnavailable:
		return true
	default:
		return false
	}
}
