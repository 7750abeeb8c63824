package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/twinlab/digital-twin/internal/apperr"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"nil", nil, apperr.KindUnknown},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), apperr.KindTimeout},
		{"apperr kind kept", apperr.New(apperr.KindEmptyResponse, "op", "empty"), apperr.KindEmptyResponse},
		{"openai 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, apperr.KindRateLimited},
		{"openai code wins", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Code: "model_decommissioned"}, apperr.KindInvalidModel},
		{"openai 403", &openai.APIError{HTTPStatusCode: http.StatusForbidden}, apperr.KindUnauthorized},
		{"request error 504", &openai.RequestError{HTTPStatusCode: http.StatusGatewayTimeout, Err: errors.New("gateway")}, apperr.KindTimeout},
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, apperr.KindRateLimited},
		{"googleapi 404", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound}), apperr.KindInvalidModel},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), apperr.KindRateLimited},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad key"), apperr.KindUnauthorized},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), apperr.KindTimeout},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), apperr.KindTimeout},
		{"message rate limit", errors.New("Rate limit exceeded for model"), apperr.KindRateLimited},
		{"message unauthorized", errors.New("401 unauthorized"), apperr.KindUnauthorized},
		{"message model", errors.New("model_not_found"), apperr.KindInvalidModel},
		{"message timeout", errors.New("request timed out"), apperr.KindTimeout},
		{"other", errors.New("connection reset by peer"), apperr.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBackoffShapes(t *testing.T) {
	base := DefaultBaseDelay
	assert.Equal(t, base, LinearBackoff(1, base))
	assert.Equal(t, 3*base, LinearBackoff(3, base))
	assert.Equal(t, base, FixedBackoff(3, base))
}

func TestRetryInvalidArgumentNotRetried(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{}, "op", func(context.Context, int) (int, error) {
		calls++
		return 0, apperr.New(apperr.KindInvalidArgument, "op", "bad")
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, 1, calls)
}

func TestRequestPrepare(t *testing.T) {
	req, truncated, err := Request{Prompt: "hi"}.prepare("model-x")
	assert.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "model-x", req.Model)
	assert.Equal(t, DefaultSystemPrompt, req.SystemPrompt)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.Zero(t, req.Temperature)

	_, _, err = Request{Prompt: "hi", Temperature: -0.1}.prepare("m")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
