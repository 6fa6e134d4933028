package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bioguard/models"

	"golang.org/x/time/rate"
)

// NutritionQuery is whatever the caller has: a barcode, free text, or a photo.
type NutritionQuery struct {
	Barcode string
	Query   string
	Image   []byte
}

// FailureReason explains why a source produced nothing.
type FailureReason string

const (
	FailureNone          FailureReason = ""
	FailureNoData        FailureReason = "no_data"
	FailureUnavailable   FailureReason = "unavailable"
	FailureMalformed     FailureReason = "malformed"
	FailureNotConfigured FailureReason = "not_configured"
	FailureTimeout       FailureReason = "timeout"
	FailureRateLimited   FailureReason = "rate_limited"
	FailureNotApplicable FailureReason = "not_applicable"
)

// SourceResult is the outcome of one provider call. Adapters report failures
// here rather than as Go errors.
type SourceResult struct {
	Nutrients   models.NutrientRaw
	ProductName string
	Ingredients []string
	Failure     FailureReason
	Detail      string
}

func (r SourceResult) OK() bool { return r.Failure == FailureNone }

func failed(reason FailureReason, format string, args ...any) SourceResult {
	return SourceResult{Failure: reason, Detail: fmt.Sprintf(format, args...)}
}

// NutritionSource is one external nutrition provider.
type NutritionSource interface {
	ID() string
	Accepts(q NutritionQuery) bool
	Lookup(ctx context.Context, q NutritionQuery) SourceResult
}

// sourceClient is the HTTP plumbing shared by the adapters.
type sourceClient struct {
	id      string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newSourceClient(id, baseURL string, timeout time.Duration, limiter *rate.Limiter) sourceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return sourceClient{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// NewSourceLimiter builds the per-provider limiter; rps <= 0 disables limiting.
func NewSourceLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// doJSON sends req and decodes a 200 body into out. notFound maps a 404 to
// FailureNoData instead of FailureUnavailable.
func (c sourceClient) doJSON(ctx context.Context, req *http.Request, out any, notFound bool) *SourceResult {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			r := classifyCallError(ctx, err, FailureRateLimited)
			return &r
		}
	}

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		r := classifyCallError(ctx, err, FailureUnavailable)
		return &r
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		r := classifyCallError(ctx, err, FailureUnavailable)
		return &r
	}
	switch {
	case resp.StatusCode == http.StatusNotFound && notFound:
		r := failed(FailureNoData, "%s: not found", c.id)
		return &r
	case resp.StatusCode == http.StatusTooManyRequests:
		r := failed(FailureRateLimited, "%s API error %d", c.id, resp.StatusCode)
		return &r
	case resp.StatusCode != http.StatusOK:
		r := failed(FailureUnavailable, "%s API error %d: %s", c.id, resp.StatusCode, truncate(string(body), 200))
		return &r
	}

	if err := json.Unmarshal(body, out); err != nil {
		r := failed(FailureMalformed, "failed to parse %s JSON: %v", c.id, err)
		return &r
	}
	return nil
}

func classifyCallError(ctx context.Context, err error, fallback FailureReason) SourceResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failed(FailureTimeout, "%v", err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return failed(FailureTimeout, "%v", err)
	}
	return failed(fallback, "%v", err)
}

// finish applies the "nothing useful" rule shared by every adapter.
func finish(id string, r SourceResult) SourceResult {
	if r.Nutrients.IsEmpty() && strings.TrimSpace(r.ProductName) == "" {
		return failed(FailureNoData, "%s: no nutrients in response", id)
	}
	return r
}

// flexFloat accepts a JSON number, a numeric string, or null.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*f = flexFloat{}
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		// unparsable values are treated as unknown, not as a malformed payload
		*f = flexFloat{}
		return nil
	}
	*f = flexFloat{v: v, ok: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.ok {
		return nil
	}
	return models.Float(f.v)
}

func scaled(p *float64, factor float64) *float64 {
	if p == nil {
		return nil
	}
	return models.Float(*p * factor)
}

// splitIngredients turns a label's ingredient text into a list.
func splitIngredients(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, ".")
	depth := 0
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.Trim(strings.TrimSpace(cur.String()), "*_ "); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range text {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',', ';':
			if depth == 0 {
				flush()
				continue
			}
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
