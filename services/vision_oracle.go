package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"bioguard/models"
	"bioguard/utils"
)

const (
	MockProviderName         = "mock"
	defaultVisionCallTimeout = 20 * time.Second
)

// VisionGuess is what a vision provider believes the photo shows.
type VisionGuess struct {
	Product     string         `json:"product"`
	HealthScore int            `json:"health_score"`
	Verdict     models.Verdict `json:"verdict"`
	Warnings    []string       `json:"warnings"`
	Ingredients []string       `json:"ingredients,omitempty"`
	Provider    string         `json:"provider"`
}

// VisionProvider is one external image model.
type VisionProvider interface {
	Name() string
	Analyze(ctx context.Context, image []byte) (*VisionGuess, error)
}

// VisionOracle tries providers in order until one answers.
type VisionOracle struct {
	providers   map[string]VisionProvider
	order       []string
	mock        bool
	callTimeout time.Duration
	log         *utils.Logger
}

// NewVisionOracle registers providers; order is the configured fallback chain.
// When mockEnabled, the mock provider closes every chain. Each provider call
// gets at most callTimeout (20s when <= 0).
func NewVisionOracle(providers []VisionProvider, order []string, mockEnabled bool, callTimeout time.Duration, log *utils.Logger) *VisionOracle {
	if log == nil {
		log = utils.NopLogger()
	}
	if callTimeout <= 0 {
		callTimeout = defaultVisionCallTimeout
	}
	o := &VisionOracle{
		providers:   make(map[string]VisionProvider, len(providers)+1),
		order:       normalizeOrder(order),
		mock:        mockEnabled,
		callTimeout: callTimeout,
		log:         log.With("service", "vision_oracle"),
	}
	for _, p := range providers {
		o.providers[strings.ToLower(p.Name())] = p
	}
	if mockEnabled {
		if _, ok := o.providers[MockProviderName]; !ok {
			o.providers[MockProviderName] = MockVisionProvider{}
		}
	}
	return o
}

// BuildOrder returns preferred first (if registered), then the configured
// order, then mock.
func (o *VisionOracle) BuildOrder(preferred string) []string {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		if _, ok := o.providers[name]; !ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if preferred != "" && preferred != MockProviderName {
		add(preferred)
	}
	for _, name := range o.order {
		if name != MockProviderName {
			add(name)
		}
	}
	if o.mock {
		add(MockProviderName)
	}
	return out
}

// Analyze returns the first successful guess plus the failures collected
// before it. When every provider fails the guess is nil.
func (o *VisionOracle) Analyze(ctx context.Context, image []byte, preferred string) (*VisionGuess, []string) {
	var errs []string
	for _, name := range o.BuildOrder(preferred) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			break
		}
		guess, err := o.call(ctx, name, image)
		if err == nil && guess == nil {
			err = errors.New("empty response")
		}
		if err != nil {
			o.log.Warn("vision provider failed", "provider", name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		guess = sanitizeGuess(guess, name)
		if name == MockProviderName && len(errs) > 0 {
			guess.Warnings = append(guess.Warnings, errs...)
		}
		return guess, errs
	}
	if len(errs) == 0 {
		errs = []string{"No provider succeeded"}
	}
	return nil, errs
}

// call runs one provider under its own deadline.
func (o *VisionOracle) call(ctx context.Context, name string, image []byte) (*VisionGuess, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	guess, err := o.providers[name].Analyze(callCtx, image)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("timed out after %s", o.callTimeout)
	}
	return guess, err
}

func sanitizeGuess(g *VisionGuess, provider string) *VisionGuess {
	out := *g
	out.Provider = provider
	out.Product = strings.TrimSpace(out.Product)
	if out.Product == "" {
		out.Product = "Unknown"
	}
	out.HealthScore = clampScore(out.HealthScore)
	out.Verdict = models.ParseVerdict(string(out.Verdict))
	out.Warnings = cleanList(out.Warnings)
	out.Ingredients = cleanList(out.Ingredients)
	return &out
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MockVisionProvider always answers with a fixed snack.
type MockVisionProvider struct{}

func (MockVisionProvider) Name() string { return MockProviderName }

func (MockVisionProvider) Analyze(ctx context.Context, _ []byte) (*VisionGuess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &VisionGuess{
		Product:     "Mock Snack",
		HealthScore: 72,
		Verdict:     models.VerdictWarning,
		Warnings:    []string{"High sugar", "Moderate sodium"},
	}, nil
}

const visionPrompt = "You are a nutritionist. Given a food or packaged product photo, return ONLY JSON with keys: " +
	`product (string), health_score (integer 0-100), verdict ("SAFE"|"WARNING"|"DANGER"), ` +
	"warnings (array of short strings), ingredients (array of ingredient names read from the label, empty if not visible)."

type rawGuess struct {
	Product     string    `json:"product"`
	HealthScore flexFloat `json:"health_score"`
	Verdict     string    `json:"verdict"`
	Warnings    []string  `json:"warnings"`
	Ingredients []string  `json:"ingredients"`
}

// parseGuessJSON accepts model output that may be wrapped in prose or code fences.
func parseGuessJSON(s string) (*VisionGuess, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty response")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(s, 120))
	}
	var rg rawGuess
	if err := json.Unmarshal([]byte(s[start:end+1]), &rg); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}
	if !rg.HealthScore.ok {
		return nil, errors.New("missing health_score")
	}
	return &VisionGuess{
		Product:     rg.Product,
		HealthScore: int(math.Round(rg.HealthScore.v)),
		Verdict:     models.Verdict(rg.Verdict),
		Warnings:    rg.Warnings,
		Ingredients: rg.Ingredients,
	}, nil
}

func imageMime(b []byte) string {
	mime := http.DetectContentType(b)
	if !strings.HasPrefix(mime, "image/") {
		return "image/jpeg"
	}
	return mime
}

func dataURL(mime string, b []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(b))
}
