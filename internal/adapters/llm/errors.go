package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// retryableStatus reports whether an HTTP status is worth another attempt.
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

// providerError wraps err with its provider and status. A zero status means
// the request never got an HTTP answer, which is treated as transient.
func providerError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	retryable := status == 0 || retryableStatus(status)
	var netErr net.Error
	if errors.As(err, &netErr) {
		retryable = true
	}
	return &domain.ProviderError{Provider: provider, StatusCode: status, Retryable: retryable, Err: err}
}

// statusPatterns maps message fragments to an HTTP status. Codes only match
// as whole words so request ids and token counts are not mistaken for them.
var statusPatterns = []struct {
	re     *regexp.Regexp
	status int
}{
	{regexp.MustCompile(`\b401\b|unauthorized|invalid api key`), http.StatusUnauthorized},
	{regexp.MustCompile(`\b403\b|forbidden`), http.StatusForbidden},
	{regexp.MustCompile(`\b429\b|rate limit`), http.StatusTooManyRequests},
	{regexp.MustCompile(`\b50[0-4]\b|internal server|service unavailable|bad gateway|overloaded`), http.StatusInternalServerError},
	{regexp.MustCompile(`\b404\b|not found`), http.StatusNotFound},
	{regexp.MustCompile(`context length|too many tokens`), http.StatusRequestEntityTooLarge},
}

// classifyMessage derives the status from an error message, for SDKs that
// only surface strings.
func classifyMessage(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	status := 0
	for _, p := range statusPatterns {
		if p.re.MatchString(msg) {
			status = p.status
			break
		}
	}
	return providerError(provider, status, err)
}
