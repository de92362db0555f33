package gemini

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gemini-desk/internal/core"
)

var apiReasonKinds = map[string]error{
	"insufficientfunds": core.ErrInsufficientFunds,
	"ordernotfound":     core.ErrOrderNotFound,
	"invalidnonce":      core.ErrInvalidNonce,
	"ratelimit":         core.ErrRateLimited,
	"ratelimited":       core.ErrRateLimited,
	"maintenance":       core.ErrMaintenance,
	"system":            core.ErrMaintenance,
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Reason != "" {
		return wrapAPIError(status, apiErr.Reason, apiErr.Message)
	}
	reason := strings.ReplaceAll(http.StatusText(status), " ", "")
	if reason == "" {
		reason = "HTTPError"
	}
	return wrapAPIError(status, reason, strings.TrimSpace(string(body)))
}

func wrapAPIError(status int, reason, msg string) error {
	return classifyAPIError(core.ExchangeError{Status: status, Reason: reason, Message: msg})
}

func classifyAPIError(apiErr core.ExchangeError) error {
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(apiErr core.ExchangeError) []error {
	kinds := make([]error, 0, 2)
	switch apiErr.Status {
	case http.StatusTooManyRequests:
		kinds = appendErrorKind(kinds, core.ErrRateLimited)
	case http.StatusServiceUnavailable:
		kinds = appendErrorKind(kinds, core.ErrMaintenance)
	}
	if kind, ok := apiReasonKinds[normalizeReason(apiErr.Reason)]; ok {
		kinds = appendErrorKind(kinds, kind)
	}
	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func normalizeReason(reason string) string {
	return strings.ToLower(strings.TrimSpace(reason))
}
