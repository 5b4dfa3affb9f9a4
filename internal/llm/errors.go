package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/yungbote/workbench-backend/internal/pkg/textutil"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/httpx"
	"github.com/yungbote/workbench-backend/internal/platform/openai"
)

const maxErrorBody = 512

// mapErr turns a wire-level failure into the upstream error taxonomy. Caller
// cancellation passes through unchanged.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apierr.New(http.StatusServiceUnavailable, apierr.CodeUpstreamError, fmt.Errorf("upstream model temporarily unavailable"))
	}
	if httpx.IsTimeout(err) {
		return apierr.New(http.StatusGatewayTimeout, apierr.CodeUpstreamTimeout, fmt.Errorf("upstream model timed out"))
	}
	var he *openai.HTTPError
	if errors.As(err, &he) {
		if he.StatusCode == http.StatusTooManyRequests {
			return apierr.New(http.StatusTooManyRequests, apierr.CodeUpstreamRateLimited, fmt.Errorf("upstream model rate limited"))
		}
		body := textutil.Truncate(he.Body, maxErrorBody)
		return apierr.New(http.StatusBadGateway, apierr.CodeUpstreamError, fmt.Errorf("upstream model error %d: %s", he.StatusCode, body))
	}
	return apierr.New(http.StatusBadGateway, apierr.CodeUpstreamError, fmt.Errorf("upstream model error: %w", err))
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		if code := apierr.CodeOf(err); code != "" {
			return code
		}
		return "error"
	}
}
