package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/petasbytes/toolchat/internal/toolsession"
)

// Kind classifies a failed call for the caller.
type Kind int

const (
	KindInternalOrchestrationError Kind = iota
	KindSessionConnectionFailed
	KindCreditsExhausted
	KindAuthenticationFailed
	KindRateLimited
	KindProviderRequestError
)

func (k Kind) String() string {
	switch k {
	case KindSessionConnectionFailed:
		return "session_connection_failed"
	case KindCreditsExhausted:
		return "credits_exhausted"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindProviderRequestError:
		return "provider_request_error"
	default:
		return "internal_orchestration_error"
	}
}

var (
	ErrRoundLimit       = errors.New("round limit reached")
	ErrWindowOverBudget = errors.New("newest transcript group exceeds the window budget")
)

// Error is the classified failure returned by Complete.
type Error struct {
	Kind       Kind
	Message    string
	ServerPath string // set for KindSessionConnectionFailed
	StatusCode int    // set for endpoint failures
	Cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the kind of a classified error, or
// KindInternalOrchestrationError for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalOrchestrationError
}

// classify maps a failure from any step of Complete onto the taxonomy.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	var ce *toolsession.ConnectError
	if errors.As(err, &ce) {
		return &Error{Kind: KindSessionConnectionFailed, Message: ce.Cause.Error(), ServerPath: ce.ServerPath, Cause: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := providerMessage(apiErr)
		out := &Error{Kind: KindInternalOrchestrationError, Message: msg, StatusCode: apiErr.StatusCode, Cause: err}
		switch apiErr.StatusCode {
		case http.StatusBadRequest:
			out.Kind = KindProviderRequestError
			if strings.Contains(strings.ToLower(msg+" "+apiErr.RawJSON()), "credit balance") {
				out.Kind = KindCreditsExhausted
			}
		case http.StatusUnauthorized:
			out.Kind = KindAuthenticationFailed
		case http.StatusTooManyRequests:
			out.Kind = KindRateLimited
		}
		return out
	}

	return &Error{Kind: KindInternalOrchestrationError, Message: err.Error(), Cause: err}
}

// providerMessage extracts error.message from the endpoint's error body.
func providerMessage(apiErr *anthropic.Error) string {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if raw := apiErr.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &body); err == nil && body.Error.Message != "" {
			return body.Error.Message
		}
		return raw
	}
	return http.StatusText(apiErr.StatusCode)
}

// DisplayText renders err as a user-facing message. Each kind opens with its
// own marker so the failures are visually distinct.
func DisplayText(err error) string {
	if err == nil {
		return ""
	}
	e := classify(err)
	switch e.Kind {
	case KindSessionConnectionFailed:
		return fmt.Sprintf(`🔧 **Tool Server Connection Failed**

Could not connect to the tool server. Please check:

1. **Runtime installed**: the server command can be run from this shell
2. **Server built**: the server entry point exists and is up to date
3. **Path correct**: verify the configured path

Current path: `+"`%s`"+`

Error details: %s`, e.ServerPath, e.Message)
	case KindCreditsExhausted:
		return `💳 **Anthropic API Credits Low**

Your API account needs more credits. Please:
1. Visit https://console.anthropic.com/settings/billing
2. Add credits or upgrade your plan
3. Try again`
	case KindAuthenticationFailed:
		return `🔑 **Authentication Failed**

Your ANTHROPIC_API_KEY is invalid. Check the key in your environment or config file.`
	case KindRateLimited:
		return `⏱️ **Rate Limit Exceeded**

Too many requests. Please wait a moment and try again.`
	case KindProviderRequestError:
		return "⚠️ **API Error**\n\n" + e.Message
	default:
		return "❌ **Unexpected Error**\n\n" + e.Message
	}
}
