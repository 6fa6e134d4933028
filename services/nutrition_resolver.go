package services

import (
	"context"
	"strings"
	"time"

	"bioguard/models"
	"bioguard/utils"
)

// DefaultSourceTrust is the static per-provider confidence table.
var DefaultSourceTrust = map[string]float64{
	models.SourceOpenFoodFacts: 0.9,
	models.SourceFoodData:      0.85,
	models.SourceNutritionix:   0.8,
	models.SourceEdamam:        0.75,
	models.SourceEdamamVision:  0.6,
}

const unknownSourceTrust = 0.5

// ResolveRequest is one nutrition lookup. Empty PreferredSources means the
// resolver's default order.
type ResolveRequest struct {
	Barcode          string
	Query            string
	Image            []byte
	PreferredSources []string
}

type ResolverOptions struct {
	DefaultOrder []string
	Trust        map[string]float64 // overrides merged onto DefaultSourceTrust
	CallTimeout  time.Duration
	Cache        NutritionCache // optional
}

// NutritionResolver tries providers in order and returns the first that has data.
type NutritionResolver struct {
	sources     map[string]NutritionSource
	order       []string
	trust       map[string]float64
	callTimeout time.Duration
	cache       NutritionCache
	log         *utils.Logger
}

func NewNutritionResolver(sources []NutritionSource, opts ResolverOptions, log *utils.Logger) *NutritionResolver {
	if log == nil {
		log = utils.NopLogger()
	}
	r := &NutritionResolver{
		sources:     make(map[string]NutritionSource, len(sources)),
		order:       normalizeOrder(opts.DefaultOrder),
		trust:       make(map[string]float64, len(DefaultSourceTrust)),
		callTimeout: opts.CallTimeout,
		cache:       opts.Cache,
		log:         log.With("service", "nutrition_resolver"),
	}
	if r.callTimeout <= 0 {
		r.callTimeout = 4 * time.Second
	}
	for _, s := range sources {
		r.sources[s.ID()] = s
	}
	for k, v := range DefaultSourceTrust {
		r.trust[k] = v
	}
	for k, v := range opts.Trust {
		r.trust[k] = v
	}
	if len(r.order) == 0 {
		r.order = []string{models.SourceOpenFoodFacts, models.SourceFoodData, models.SourceEdamam, models.SourceNutritionix}
	}
	return r
}

// Order returns the effective provider order for a request.
func (r *NutritionResolver) Order(preferred []string) []string {
	if p := normalizeOrder(preferred); len(p) > 0 {
		return p
	}
	return append([]string(nil), r.order...)
}

// Trust returns the confidence assigned to a provider id.
func (r *NutritionResolver) Trust(id string) float64 {
	if v, ok := r.trust[id]; ok {
		return v
	}
	return unknownSourceTrust
}

// Resolve never fails: an absent result is a snapshot with no Source.
func (r *NutritionResolver) Resolve(ctx context.Context, req ResolveRequest) models.NutrientSnapshot {
	q := NutritionQuery{
		Barcode: strings.TrimSpace(req.Barcode),
		Query:   strings.TrimSpace(req.Query),
		Image:   req.Image,
	}
	if q.Barcode == "" && q.Query == "" && len(q.Image) == 0 {
		return models.EmptySnapshot(nil)
	}
	order := r.Order(req.PreferredSources)

	key := cacheKey(q, order)
	if key != "" && r.cache != nil {
		snap, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Warn("nutrition cache read failed", "error", err)
		} else if ok && snap.Found() {
			snap.Cached = true
			return snap
		}
	}

	var attempts []models.SourceAttempt
	for _, id := range order {
		if ctx.Err() != nil {
			r.log.Debug("nutrition lookup abandoned", "attempts", len(attempts))
			return models.EmptySnapshot(attempts)
		}
		src, ok := r.sources[id]
		if !ok {
			r.log.Warn("skipping unknown nutrition source", "source", id)
			attempts = append(attempts, models.SourceAttempt{Source: id, Outcome: "unknown_source"})
			continue
		}
		if !src.Accepts(q) {
			continue
		}

		res := r.call(ctx, src, q)
		if !res.OK() {
			r.log.Debug("nutrition source miss", "source", id, "reason", string(res.Failure), "detail", res.Detail)
			attempts = append(attempts, models.SourceAttempt{Source: id, Outcome: string(res.Failure), Detail: res.Detail})
			continue
		}

		attempts = append(attempts, models.SourceAttempt{Source: id, Outcome: "ok"})
		raw := res.Nutrients
		snap := models.NutrientSnapshot{
			Source:      id,
			Confidence:  r.Trust(id),
			Raw:         &raw,
			ProductName: res.ProductName,
			Ingredients: res.Ingredients,
			Attempts:    attempts,
		}
		if key != "" && r.cache != nil && id != models.SourceEdamamVision {
			if err := r.cache.Set(ctx, key, snap); err != nil {
				r.log.Warn("nutrition cache write failed", "error", err)
			}
		}
		return snap
	}
	return models.EmptySnapshot(attempts)
}

// call bounds one adapter call by the per-call timeout even when the
// adapter ignores its context.
func (r *NutritionResolver) call(ctx context.Context, src NutritionSource, q NutritionQuery) SourceResult {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	done := make(chan SourceResult, 1)
	go func() {
		done <- src.Lookup(callCtx, q)
	}()
	select {
	case res := <-done:
		if !res.OK() && callCtx.Err() == context.DeadlineExceeded {
			res.Failure = FailureTimeout
		}
		return res
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return failed(FailureTimeout, "cancelled: %v", ctx.Err())
		}
		return failed(FailureTimeout, "%s exceeded %s", src.ID(), r.callTimeout)
	}
}

func cacheKey(q NutritionQuery, order []string) string {
	if q.Barcode == "" && q.Query == "" {
		return ""
	}
	return "b=" + q.Barcode + ";q=" + strings.ToLower(q.Query) + ";o=" + strings.Join(order, ",")
}

func normalizeOrder(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
