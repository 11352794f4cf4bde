package llm

import (
	"context"
	"errors"
	"log"
	"time"

	"apploom/internal/llmclient"
)

// Middleware decorates an LLMClient to inject a cross-cutting concern
// (rate limiting, retries, logging). Wrap(inner, A, B) builds A(B(inner)):
// the first middleware listed sees the request first and the response
// last.
type Middleware func(llmclient.LLMClient) llmclient.LLMClient

// Wrap applies middlewares in left-to-right order.
func Wrap(inner llmclient.LLMClient, mws ...Middleware) llmclient.LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit throttles calls to at most rps requests per second with the
// given burst. A non-positive rps disables the limiter.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next llmclient.LLMClient
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string             { return c.next.Name() }
func (c *rateLimited) Close() error              { return c.next.Close() }
func (c *rateLimited) CountTokens(s string) int  { return c.next.CountTokens(s) }
func (c *rateLimited) TokenCapacity() int        { return c.next.TokenCapacity() }
func (c *rateLimited) SupportsVision() bool      { return c.next.SupportsVision() }
func (c *rateLimited) GenerateJSON(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return llmclient.Response{}, err
	}
	return c.next.GenerateJSON(ctx, req)
}

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. A *llmclient.PermanentError is never retried.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next llmclient.LLMClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string            { return r.next.Name() }
func (r *retrying) Close() error            { return r.next.Close() }
func (r *retrying) CountTokens(s string) int { return r.next.CountTokens(s) }
func (r *retrying) TokenCapacity() int       { return r.next.TokenCapacity() }
func (r *retrying) SupportsVision() bool     { return r.next.SupportsVision() }
func (r *retrying) GenerateJSON(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	var permanent *llmclient.PermanentError
	var last error
	for attempt := 0; attempt < r.max; attempt++ {
		resp, err := r.next.GenerateJSON(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if errors.As(err, &permanent) {
			return llmclient.Response{}, err
		}
		select {
		case <-ctx.Done():
			return llmclient.Response{}, ctx.Err()
		default:
		}
		time.Sleep(r.base * time.Duration(1<<attempt))
	}
	return llmclient.Response{}, last
}

// WithLogging logs request size and errors via logger (log.Default() if
// nil). With verbose set, it also logs the system/user prompt and the
// raw response body (truncated), the extra detail the debug flag is
// for — normal operation only needs the byte-count/error line.
func WithLogging(logger *log.Logger, verbose bool) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &logging{next: next, log: logger, verbose: verbose}
	}
}

type logging struct {
	next    llmclient.LLMClient
	log     *log.Logger
	verbose bool
}

func (l *logging) Name() string            { return l.next.Name() }
func (l *logging) Close() error            { return l.next.Close() }
func (l *logging) CountTokens(s string) int { return l.next.CountTokens(s) }
func (l *logging) TokenCapacity() int       { return l.next.TokenCapacity() }
func (l *logging) SupportsVision() bool     { return l.next.SupportsVision() }

// verboseLogTruncate bounds how much of a prompt or response body
// WithLogging(verbose=true) prints per call.
const verboseLogTruncate = 2000

func (l *logging) GenerateJSON(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	l.log.Printf("llm request (%s, task=%s): %d bytes", l.next.Name(), TaskTypeFrom(ctx), len(req.Prompt)+len(req.SystemPrompt))
	if l.verbose {
		l.log.Printf("llm request body (%s): system=%q prompt=%q", l.next.Name(), truncateForLog(req.SystemPrompt), truncateForLog(req.Prompt))
	}
	resp, err := l.next.GenerateJSON(ctx, req)
	if err != nil {
		l.log.Printf("llm error (%s): %v", l.next.Name(), err)
		return resp, err
	}
	if l.verbose {
		l.log.Printf("llm response body (%s): %s", l.next.Name(), truncateForLog(string(resp.JSON)))
	}
	return resp, err
}

func truncateForLog(s string) string {
	if len(s) <= verboseLogTruncate {
		return s
	}
	return s[:verboseLogTruncate] + "...(truncated)"
}
