package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/twinlab/digital-twin/internal/apperr"
)

// Classify maps a provider error to a retry class. Structured codes win;
// the message is inspected only when nothing structured is available.
// KindUnknown means "other transient failure".
func Classify(err error) apperr.Kind {
	if err == nil {
		return apperr.KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.KindTimeout
	}
	if kind := apperr.KindOf(err); kind != apperr.KindUnknown {
		return kind
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := codeKind(apiErr.Code); ok {
			return kind
		}
		if kind, ok := httpStatusKind(apiErr.HTTPStatusCode); ok {
			return kind
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if kind, ok := httpStatusKind(reqErr.HTTPStatusCode); ok {
			return kind
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if kind, ok := httpStatusKind(gErr.Code); ok {
			return kind
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return apperr.KindRateLimited
		case codes.Unauthenticated, codes.PermissionDenied:
			return apperr.KindUnauthorized
		case codes.NotFound:
			return apperr.KindInvalidModel
		case codes.DeadlineExceeded:
			return apperr.KindTimeout
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.KindTimeout
	}

	return messageKind(err.Error())
}

func httpStatusKind(code int) (apperr.Kind, bool) {
	switch code {
	case http.StatusTooManyRequests:
		return apperr.KindRateLimited, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.KindUnauthorized, true
	case http.StatusNotFound:
		return apperr.KindInvalidModel, true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return apperr.KindTimeout, true
	}
	return apperr.KindUnknown, false
}

func codeKind(code any) (apperr.Kind, bool) {
	if code == nil {
		return apperr.KindUnknown, false
	}
	switch fmt.Sprint(code) {
	case "model_not_found", "model_decommissioned":
		return apperr.KindInvalidModel, true
	case "rate_limit_exceeded":
		return apperr.KindRateLimited, true
	case "invalid_api_key":
		return apperr.KindUnauthorized, true
	}
	return apperr.KindUnknown, false
}

func messageKind(msg string) apperr.Kind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return apperr.KindRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return apperr.KindUnauthorized
	case strings.Contains(msg, "404") || strings.Contains(msg, "model_not_found"):
		return apperr.KindInvalidModel
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return apperr.KindTimeout
	}
	return apperr.KindUnknown
}
