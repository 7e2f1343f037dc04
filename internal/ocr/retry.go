package ocr

import (
	"context"
	"errors"
	"time"
)

// ProcessWithRetry runs the full submit-and-recognize sequence with
// the retry policy: up to the configured ceiling, exponential backoff
// of 2^attempt seconds after each failed attempt, strictly
// sequential. After exhausting retries an auth failure degrades to
// the deterministic demo result; anything else surfaces as APIError
// with the last cause attached.
func (c *Client) ProcessWithRetry(ctx context.Context, content []byte, filename string, includeImages bool) (*Response, error) {
	return c.withRetry(ctx, filename, func(ctx context.Context) (*Response, error) {
		return c.Process(ctx, content, filename, includeImages)
	})
}

// ProcessURLWithRetry is ProcessWithRetry for caller-supplied URLs.
func (c *Client) ProcessURLWithRetry(ctx context.Context, documentURL string, includeImages bool) (*Response, error) {
	return c.withRetry(ctx, documentURL, func(ctx context.Context) (*Response, error) {
		return c.ProcessURL(ctx, documentURL, includeImages)
	})
}

func (c *Client) withRetry(ctx context.Context, ref string, call func(context.Context) (*Response, error)) (*Response, error) {
	if c.demoMode {
		c.log.Info().Str("ref", ref).Msg("Demo mode enabled, returning demo OCR result")
		return DemoResponse(ref), nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			c.log.Info().Int("attempt", attempt).Str("ref", ref).Msg("OCR request succeeded")
			return resp, nil
		}
		lastErr = err

		c.log.Error().
			Int("attempt", attempt).
			Str("error_class", string(errClass(err))).
			Err(err).
			Msg("OCR attempt failed")

		if ctx.Err() != nil {
			break
		}
		c.sleep(backoff(attempt))
	}

	if IsAuth(lastErr) {
		c.log.Warn().Str("ref", ref).Msg("OCR auth failed after all retries, degrading to demo result")
		return DemoResponse(ref), nil
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		// Transient errors that never cleared are terminal now.
		if apiErr.Class == ClassTransient {
			return nil, &APIError{
				Status:  apiErr.Status,
				Class:   ClassPermanent,
				Message: "retries exhausted: " + apiErr.Message,
				Err:     apiErr.Err,
			}
		}
		return nil, apiErr
	}
	return nil, &APIError{Class: ClassPermanent, Message: "retries exhausted", Err: lastErr}
}

// backoff returns the delay after the n-th failed attempt: 2^n seconds.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func errClass(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ClassPermanent
}
