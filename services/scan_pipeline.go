package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bioguard/config"
	"bioguard/models"
	"bioguard/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	maxConflictWarnings = 3
	neutralHealthScore  = 50
	labelDataSource     = "label_ocr"
)

// ScanInput is one capture from the client. At least one of Image, Barcode
// or Query must be set.
type ScanInput struct {
	UserID           string
	Image            []byte
	Barcode          string
	Query            string
	VisionProvider   string
	PreferredSources []string
}

func (in ScanInput) empty() bool {
	return len(in.Image) == 0 && strings.TrimSpace(in.Barcode) == "" && strings.TrimSpace(in.Query) == ""
}

// Collaborators of the pipeline. Only the profile store and scan store are
// required; the rest are skipped when nil.
type (
	ProfileStore interface {
		GetHealthProfile(ctx context.Context, userID string) (*models.HealthProfile, error)
	}
	ScanStore interface {
		Save(ctx context.Context, userID string, r *models.ScanAnalysisResult) error
	}
	ImageOracle interface {
		Analyze(ctx context.Context, image []byte, preferred string) (*VisionGuess, []string)
	}
	LabelScanner interface {
		Read(ctx context.Context, image []byte) (*LabelReading, error)
	}
	NutritionLookup interface {
		Resolve(ctx context.Context, req ResolveRequest) models.NutrientSnapshot
	}
	ConflictFinder interface {
		FindConflicts(ingredients, conditions []string) []models.ConflictMatch
	}
	ImageArchiver interface {
		Archive(ctx context.Context, userID, scanID string, image []byte) (string, error)
	}
	ScanNotifier interface {
		NotifyScan(ctx context.Context, userID string, r *models.ScanAnalysisResult) error
	}
	NutrientSyncer interface {
		Sync(ctx context.Context, userID string, r *models.ScanAnalysisResult) error
	}
)

type PipelineDeps struct {
	Profiles ProfileStore
	Store    ScanStore
	Oracle   ImageOracle
	Labels   LabelScanner
	Resolver NutritionLookup
	Graph    ConflictFinder
	Tracker  *ScanTracker
	Archive  ImageArchiver
	Alerts   ScanNotifier
	Sync     NutrientSyncer
}

// ScanPipeline turns one capture into a ScanAnalysisResult.
type ScanPipeline struct {
	deps PipelineDeps
	log  *utils.Logger
	now  func() time.Time
}

func NewScanPipeline(deps PipelineDeps, log *utils.Logger) *ScanPipeline {
	if log == nil {
		log = utils.NopLogger()
	}
	if deps.Tracker == nil {
		deps.Tracker = NewScanTracker(0)
	}
	return &ScanPipeline{deps: deps, log: log.With("service", "scan_pipeline"), now: time.Now}
}

// Tracker exposes the per-user state machine for the detect/state/cancel endpoints.
func (p *ScanPipeline) Tracker() *ScanTracker { return p.deps.Tracker }

// gathered holds what the concurrent step produced.
type gathered struct {
	guess      *VisionGuess
	visionErrs []string
	label      *LabelReading
	snap       models.NutrientSnapshot
	imageURL   string
}

// Analyze runs one scan for the user. A newer scan or an explicit cancel
// abandons this one, in which case nothing is persisted.
func (p *ScanPipeline) Analyze(ctx context.Context, in ScanInput) (result *models.ScanAnalysisResult, err error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Barcode = strings.TrimSpace(in.Barcode)
	in.Query = strings.TrimSpace(in.Query)
	if in.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if in.empty() {
		return nil, ErrEmptyScan
	}

	scanCtx, finish := p.deps.Tracker.Begin(ctx, in.UserID)
	defer func() { finish(err == nil) }()

	log := p.log.With("user_id", in.UserID)
	profile := p.loadProfile(scanCtx, in.UserID, log)
	sources := sourceOrderFor(in, profile)
	scanID := uuid.NewString()

	g := p.gather(scanCtx, in, profile, sources, scanID, log)
	if scanCtx.Err() != nil {
		return nil, ErrScanAbandoned
	}

	barcode := in.Barcode
	if barcode == "" && g.label != nil {
		barcode = g.label.Barcode
	}

	// second chance: look the product up by what the camera saw
	if !g.snap.Found() && p.deps.Resolver != nil {
		query := in.Query
		if query == "" && g.guess != nil && g.guess.Product != "Unknown" {
			query = g.guess.Product
		}
		firstTried := in.Barcode != "" || in.Query != ""
		if !firstTried || barcode != in.Barcode || query != in.Query {
			g.snap = p.deps.Resolver.Resolve(scanCtx, ResolveRequest{
				Barcode:          barcode,
				Query:            query,
				Image:            in.Image,
				PreferredSources: sources,
			})
		}
		if scanCtx.Err() != nil {
			return nil, ErrScanAbandoned
		}
	}

	res := p.assemble(in, profile, g, barcode)
	res.ID = scanID

	if scanCtx.Err() != nil {
		return nil, ErrScanAbandoned
	}
	p.persist(scanCtx, in.UserID, profile, res, log)
	return res, nil
}

func (p *ScanPipeline) loadProfile(ctx context.Context, userID string, log *utils.Logger) *models.HealthProfile {
	if p.deps.Profiles == nil {
		return nil
	}
	profile, err := p.deps.Profiles.GetHealthProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			log.Warn("profile lookup failed", "error", err)
		}
		return nil
	}
	return profile
}

// sourceOrderFor picks the request order, then the user's, then the user's
// region. Nil leaves the resolver default in place.
func sourceOrderFor(in ScanInput, profile *models.HealthProfile) []string {
	if len(in.PreferredSources) > 0 {
		return in.PreferredSources
	}
	if profile == nil {
		return nil
	}
	if len(profile.PreferredSources) > 0 {
		return profile.PreferredSources
	}
	if profile.Region != "" {
		return config.RegionSourceOrder(profile.Region)
	}
	return nil
}

func (p *ScanPipeline) gather(ctx context.Context, in ScanInput, profile *models.HealthProfile, sources []string, scanID string, log *utils.Logger) gathered {
	var out gathered
	hasImage := len(in.Image) > 0

	// every branch degrades instead of failing, so the group never cancels early
	eg, gctx := errgroup.WithContext(ctx)
	if hasImage && p.deps.Oracle != nil {
		preferred := in.VisionProvider
		if preferred == "" && profile != nil {
			preferred = profile.PreferredVision
		}
		eg.Go(func() error {
			out.guess, out.visionErrs = p.deps.Oracle.Analyze(gctx, in.Image, preferred)
			return nil
		})
	} else if hasImage {
		out.visionErrs = []string{"No provider succeeded"}
	}
	if hasImage && p.deps.Labels != nil {
		eg.Go(func() error {
			reading, err := p.deps.Labels.Read(gctx, in.Image)
			if err != nil {
				log.Warn("label ocr failed", "error", err)
				return nil
			}
			out.label = reading
			return nil
		})
	}
	if (in.Barcode != "" || in.Query != "") && p.deps.Resolver != nil {
		eg.Go(func() error {
			out.snap = p.deps.Resolver.Resolve(gctx, ResolveRequest{
				Barcode:          in.Barcode,
				Query:            in.Query,
				PreferredSources: sources,
			})
			return nil
		})
	}
	if hasImage && p.deps.Archive != nil {
		eg.Go(func() error {
			url, err := p.deps.Archive.Archive(gctx, in.UserID, scanID, in.Image)
			if err != nil {
				log.Warn("image archive failed", "error", err)
				return nil
			}
			out.imageURL = url
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (p *ScanPipeline) assemble(in ScanInput, profile *models.HealthProfile, g gathered, barcode string) *models.ScanAnalysisResult {
	res := &models.ScanAnalysisResult{
		Ingredients:     []string{},
		Warnings:        []string{},
		HealthConflicts: []models.ConflictMatch{},
		Barcode:         barcode,
		ImageURL:        g.imageURL,
		CreatedAt:       p.now().UTC(),
	}
	if len(g.visionErrs) > 0 {
		res.Errors = append([]string(nil), g.visionErrs...)
	}

	// nutrients: resolved snapshot first, label panel as a fallback
	if g.snap.Found() {
		raw := *g.snap.Raw
		src := g.snap.Source
		res.Nutrients = &raw
		res.DataSource = &src
		res.Confidence = g.snap.Confidence
	} else if g.label != nil && !g.label.Nutrients.IsEmpty() {
		raw := g.label.Nutrients
		src := labelDataSource
		res.Nutrients = &raw
		res.DataSource = &src
	}

	res.Product = "Unknown"
	if g.guess != nil {
		res.Product = g.guess.Product
	}
	if res.Product == "Unknown" && g.snap.ProductName != "" {
		res.Product = g.snap.ProductName
	}

	switch {
	case g.guess != nil && len(g.guess.Ingredients) > 0:
		res.Ingredients = append(res.Ingredients, g.guess.Ingredients...)
	case g.label != nil && len(g.label.Ingredients) > 0:
		res.Ingredients = append(res.Ingredients, g.label.Ingredients...)
	case len(g.snap.Ingredients) > 0:
		res.Ingredients = append(res.Ingredients, g.snap.Ingredients...)
	}

	flags := utils.AssessNutrients(res.Product, res.Nutrients)
	origin := "default"
	switch {
	case g.guess != nil:
		res.HealthScore = g.guess.HealthScore
		res.Verdict = g.guess.Verdict
		res.Warnings = append(res.Warnings, g.guess.Warnings...)
		origin = "vision:" + g.guess.Provider
	case len(in.Image) > 0:
		res.HealthScore = neutralHealthScore
		res.Verdict = models.VerdictWarning
		res.Warnings = append(res.Warnings, g.visionErrs...)
	case res.Nutrients != nil:
		res.HealthScore = utils.NutrientScore(res.Nutrients, flags)
		res.Verdict = utils.VerdictForScore(res.HealthScore)
		for _, w := range flags {
			if w.Severity != utils.Info {
				res.Warnings = append(res.Warnings, w.Message)
			}
		}
		origin = "nutrients"
	default:
		res.HealthScore = neutralHealthScore
		res.Verdict = models.VerdictWarning
	}

	if profile != nil && p.deps.Graph != nil {
		matches := p.deps.Graph.FindConflicts(res.Ingredients, profile.Conditions())
		for i, m := range matches {
			if i >= maxConflictWarnings {
				break
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("⚠️ %s may affect %s", m.Ingredient, m.HealthCondition))
		}
		res.HealthConflicts = append(res.HealthConflicts, matches...)
	}

	res.Breakdown = models.ScoreBreakdown{
		Baseline:       res.HealthScore,
		BaselineOrigin: origin,
		NutrientFlags:  utils.WarningCodes(flags),
		ConflictCount:  len(res.HealthConflicts),
	}
	return res
}

// persist stores the result, then fans out alerts and health sync. None of
// these failures reach the caller.
func (p *ScanPipeline) persist(ctx context.Context, userID string, profile *models.HealthProfile, res *models.ScanAnalysisResult, log *utils.Logger) {
	if p.deps.Store != nil {
		if err := p.deps.Store.Save(ctx, userID, res); err != nil {
			log.Error("failed to save scan", "scan_id", res.ID, "error", err)
		}
	}
	if p.deps.Alerts != nil {
		if err := p.deps.Alerts.NotifyScan(ctx, userID, res); err != nil {
			log.Warn("failed to emit scan alert", "scan_id", res.ID, "error", err)
		}
	}
	if p.deps.Sync != nil && profile != nil && profile.HealthSync && res.Nutrients != nil {
		if err := p.deps.Sync.Sync(ctx, userID, res); err != nil {
			log.Warn("health sync failed", "scan_id", res.ID, "error", err)
		}
	}
	log.Info("scan analyzed",
		"scan_id", res.ID,
		"product", res.Product,
		"score", res.HealthScore,
		"verdict", res.Verdict,
		"conflicts", len(res.HealthConflicts),
	)
}
