package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error kinds surfaced by every provider.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)

// ServiceError is a classified failure of the completion service. It
// matches both its Kind and the underlying error with errors.Is.
type ServiceError struct {
	Kind       error
	Provider   string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind of err, or nil if err is not a
// classified service error.
func KindOf(err error) error {
	for _, kind := range []error{ErrAuthenticationFailed, ErrQuotaExceeded, ErrServiceUnavailable, ErrInvalidRequest} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func outcome(err error) string {
	switch KindOf(err) {
	case nil:
		if err != nil {
			return "error"
		}
		return "success"
	case ErrAuthenticationFailed:
		return "authentication"
	case ErrQuotaExceeded:
		return "quota"
	case ErrServiceUnavailable:
		return "unavailable"
	default:
		return "invalid_request"
	}
}

func missingKey(provider string) error {
	return &ServiceError{
		Kind:     ErrAuthenticationFailed,
		Provider: provider,
		Err:      errors.New("no API key configured"),
	}
}

func kindForStatus(code int, quota bool) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthenticationFailed
	case code == http.StatusTooManyRequests && quota:
		return ErrQuotaExceeded
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return ErrServiceUnavailable
	case code >= 400:
		return ErrInvalidRequest
	default:
		return ErrServiceUnavailable
	}
}

// transportKind classifies errors that never reached the provider.
func transportKind(err error) (error, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrServiceUnavailable, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrServiceUnavailable, true
	}
	return nil, false
}

func classifyOpenAI(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		quota := apiErr.Type == "insufficient_quota" || fmt.Sprint(apiErr.Code) == "insufficient_quota"
		return &ServiceError{
			Kind:       kindForStatus(apiErr.HTTPStatusCode, quota),
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ServiceError{
			Kind:       kindForStatus(reqErr.HTTPStatusCode, false),
			Provider:   "openai",
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	if kind, ok := transportKind(err); ok {
		return &ServiceError{Kind: kind, Provider: "openai", Err: err}
	}
	return &ServiceError{Kind: ErrServiceUnavailable, Provider: "openai", Err: err}
}

func classifyGemini(err error) error {
	if err == nil {
		return nil
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &ServiceError{Kind: ErrInvalidRequest, Provider: "gemini", Err: err}
	}

	quota := strings.Contains(strings.ToLower(err.Error()), "quota")

	if ae, ok := apierror.FromError(err); ok {
		if code := ae.HTTPCode(); code > 0 {
			return &ServiceError{Kind: kindForStatus(code, quota), Provider: "gemini", StatusCode: code, Err: err}
		}
		if st := ae.GRPCStatus(); st != nil {
			return &ServiceError{Kind: kindForGRPC(st.Code(), quota), Provider: "gemini", Err: err}
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return &ServiceError{Kind: kindForGRPC(st.Code(), quota), Provider: "gemini", Err: err}
	}

	if kind, ok := transportKind(err); ok {
		return &ServiceError{Kind: kind, Provider: "gemini", Err: err}
	}
	return &ServiceError{Kind: ErrServiceUnavailable, Provider: "gemini", Err: err}
}

func kindForGRPC(code codes.Code, quota bool) error {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrAuthenticationFailed
	case codes.ResourceExhausted:
		if quota {
			return ErrQuotaExceeded
		}
		return ErrServiceUnavailable
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound, codes.OutOfRange:
		return ErrInvalidRequest
	default:
		return ErrServiceUnavailable
	}
}
