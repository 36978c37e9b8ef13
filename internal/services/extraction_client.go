package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/drawingflow/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrMaxRetries is matched (errors.Is) by every error the ExtractionClient
// returns after exhausting its attempts.
var ErrMaxRetries = errors.New("max retries reached for API call")

// Generator is the structured-extraction service. gcp.VertexClient implements it.
type Generator interface {
	Generate(ctx context.Context, req *models.ExtractionRequest) (string, error)
}

// Caller is what the document pipeline needs from the extraction client.
type Caller interface {
	Call(ctx context.Context, req *models.ExtractionRequest) (string, error)
}

// RetryPolicy bounds the attempts made for a single extraction call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration // first wait after a rate-limit failure
	MaxBackoff     time.Duration // cap on the rate-limit wait, jitter excluded
	MaxJitter      time.Duration // jitter is uniform in [0, MaxJitter)
	RetryDelay     time.Duration // fixed wait after any other failure
	CallTimeout    time.Duration // per-attempt deadline; zero means none
}

// DefaultRetryPolicy returns 3 attempts, 1s..60s rate-limit backoff with up to
// 1s of jitter, and a fixed 5s delay for other failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		MaxJitter:      time.Second,
		RetryDelay:     5 * time.Second,
	}
}

// failureClass is the retry-relevant category of a failed attempt.
type failureClass int

const (
	failureOther failureClass = iota
	failureRateLimit
)

func (c failureClass) String() string {
	if c == failureRateLimit {
		return "rate_limit"
	}
	return "other"
}

// CallError is the terminal error of an exhausted extraction call.
type CallError struct {
	Attempts    int
	RateLimited bool // the last attempt failed on a rate limit
	Err         error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("failed to make API call after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both ErrMaxRetries and the last attempt's error.
func (e *CallError) Unwrap() []error { return []error{ErrMaxRetries, e.Err} }

// Kind maps the error onto the pipeline taxonomy.
func (e *CallError) Kind() models.ErrorKind { return models.ErrExtractionCallFailed }

// ExtractionClient wraps a Generator with bounded retry.
type ExtractionClient struct {
	generator Generator
	policy    RetryPolicy
	clock     Clock
	jitter    func() float64
	logger    *slog.Logger
}

// ClientOption configures an ExtractionClient.
type ClientOption func(*ExtractionClient)

// WithClock replaces the wall clock used for waits.
func WithClock(clock Clock) ClientOption {
	return func(c *ExtractionClient) { c.clock = clock }
}

// WithJitter replaces the [0,1) random source used for jitter.
func WithJitter(jitter func() float64) ClientOption {
	return func(c *ExtractionClient) { c.jitter = jitter }
}

// WithClientLogger sets the logger. Default is slog.Default().
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *ExtractionClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewExtractionClient returns a client calling gen under policy.
func NewExtractionClient(gen Generator, policy RetryPolicy, opts ...ClientOption) *ExtractionClient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &ExtractionClient{
		generator: gen,
		policy:    policy,
		clock:     RealClock(),
		jitter:    rand.Float64,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call issues req, retrying failed attempts. Rate-limit failures back off
// exponentially with jitter; any other failure waits the fixed retry delay.
// Only outcomes are logged, never request or response content.
func (c *ExtractionClient) Call(ctx context.Context, req *models.ExtractionRequest) (string, error) {
	backoff := min(c.policy.InitialBackoff, c.policy.MaxBackoff)
	var lastErr error
	var lastClass failureClass

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		text, err := c.attempt(ctx, req)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("API call succeeded after retry.", "attempt", attempt)
			}
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("extraction call aborted: %w", ctxErr)
		}

		lastErr = err
		lastClass = classifyCallError(err)
		if attempt == c.policy.MaxAttempts {
			break
		}

		var wait time.Duration
		if lastClass == failureRateLimit {
			wait = backoff + time.Duration(c.jitter()*float64(c.policy.MaxJitter))
			backoff = min(backoff*2, c.policy.MaxBackoff)
			c.logger.Warn("Rate limit hit, retrying.",
				"attempt", attempt,
				"maxAttempts", c.policy.MaxAttempts,
				"wait", wait.String(),
			)
		} else {
			wait = c.policy.RetryDelay
			c.logger.Error("API call failed, retrying.",
				"attempt", attempt,
				"maxAttempts", c.policy.MaxAttempts,
				"wait", wait.String(),
				"error", err,
			)
		}

		if err := c.clock.Sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("extraction call aborted during backoff: %w", err)
		}
	}

	c.logger.Error("Max retries reached for API call.",
		"attempts", c.policy.MaxAttempts,
		"failureClass", lastClass.String(),
		"error", lastErr,
	)
	return "", &CallError{
		Attempts:    c.policy.MaxAttempts,
		RateLimited: lastClass == failureRateLimit,
		Err:         lastErr,
	}
}

func (c *ExtractionClient) attempt(ctx context.Context, req *models.ExtractionRequest) (string, error) {
	if c.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.CallTimeout)
		defer cancel()
	}
	return c.generator.Generate(ctx, req)
}

// rateLimitMarkers are matched against error text when the error carries no
// structured code.
var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"resource exhausted",
	"resource_exhausted",
	"quota exceeded",
	"status 429",
	"code 429",
	"error 429",
	"http 429",
}

// classifyCallError is the only place that decides whether a failure is a
// rate limit. Structured codes win; message matching is the fallback.
func classifyCallError(err error) failureClass {
	if err == nil {
		return failureOther
	}
	if status.Code(err) == codes.ResourceExhausted {
		return failureRateLimit
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return failureRateLimit
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return failureRateLimit
		}
	}
	return failureOther
}
