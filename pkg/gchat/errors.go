package gchat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrConfiguration = errors.New("gchat: invalid configuration")
	ErrNoWebhooks    = fmt.Errorf("%w: at least one webhook is required", ErrConfiguration)
)

// UnauthorizedWebhookError reports a 401 from a webhook. The webhook's key or
// token is no longer valid; it stays configured and later batches will fail
// the same way until the configuration changes.
type UnauthorizedWebhookError struct {
	Webhook string
}

func (e *UnauthorizedWebhookError) Error() string {
	return "gchat: webhook is no longer valid (401 unauthorized): " + RedactWebhook(e.Webhook)
}

// DeliveryError reports any other non-200 response. Body is the response body
// verbatim (capped at maxErrorBody bytes).
type DeliveryError struct {
	Webhook    string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("gchat: delivery to %s failed: status %d: %s", RedactWebhook(e.Webhook), e.StatusCode, e.Body)
}

// TransportError wraps a network-level failure (DNS, refused, timeout) as
// returned by the HTTP client.
type TransportError struct {
	Webhook string
	Err     error
}

func (e *TransportError) Error() string {
	// *url.Error embeds the full request URL, secrets included.
	var ue *url.Error
	if errors.As(e.Err, &ue) {
		return fmt.Sprintf("gchat: post %s: %v", RedactWebhook(e.Webhook), ue.Err)
	}
	return fmt.Sprintf("gchat: post %s: %v", RedactWebhook(e.Webhook), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FormatError reports an event the formatter could not render. The event was
// not sent to any webhook.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return "gchat: format event: " + e.Err.Error() }
func (e *FormatError) Unwrap() error { return e.Err }

// BatchError aggregates every failed delivery of one DeliverBatch call.
type BatchError struct {
	Failures  []error
	Attempted int
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 0 {
		return "gchat: batch failed"
	}
	msg := fmt.Sprintf("gchat: %d of %d deliveries failed: %v", len(e.Failures), e.Attempted, e.Failures[0])
	if n := len(e.Failures) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

func (e *BatchError) Unwrap() []error { return e.Failures }

// RedactWebhook hides query values (Google Chat puts key and token there) and
// userinfo so a webhook can be logged.
func RedactWebhook(webhook string) string {
	u, err := url.Parse(webhook)
	if err != nil || u.Host == "" {
		return "<invalid webhook>"
	}
	u.User = nil
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q[k] = []string{"REDACTED"}
		}
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "?")
}
