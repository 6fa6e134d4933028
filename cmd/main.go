package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bioguard/config"
	"bioguard/controllers"
	"bioguard/routes"
	"bioguard/services"
	"bioguard/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.App.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("database init failed", "error", err)
	}

	scheduler := services.NewScheduler(logger)

	// nutrition
	var cache services.NutritionCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, using in-memory nutrition cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = services.NewRedisNutritionCache(rdb, cfg.Redis.CacheTTL)
			defer rdb.Close()
		}
	}
	if cache == nil {
		mem := services.NewMemoryNutritionCache(cfg.Redis.CacheTTL)
		cache = mem
		mustAdd(logger, scheduler.Add("nutrition-cache-sweep", "0 */5 * * * *", services.CacheSweepJob(mem, logger)))
	}

	nc := cfg.Nutrition
	limiter := func() *rate.Limiter { return services.NewSourceLimiter(nc.RateLimit, nc.RateBurst) }
	resolver := services.NewNutritionResolver([]services.NutritionSource{
		services.NewOpenFoodFactsSource(nc.OpenFoodFactsURL, nc.CallTimeout, limiter()),
		services.NewFoodDataSource(nc.FoodDataURL, nc.FoodDataKey, nc.CallTimeout, limiter()),
		services.NewEdamamSource(nc.EdamamURL, nc.EdamamAppID, nc.EdamamAppKey, nc.CallTimeout, limiter()),
		services.NewEdamamVisionSource(nc.EdamamURL, nc.EdamamAppID, nc.EdamamAppKey, nc.CallTimeout, limiter()),
		services.NewNutritionixSource(nc.NutritionixURL, nc.NutritionixAppID, nc.NutritionixKey, nc.CallTimeout, limiter()),
	}, services.ResolverOptions{
		DefaultOrder: cfg.DefaultSourceOrder(),
		Trust:        nc.Trust,
		CallTimeout:  nc.CallTimeout,
		Cache:        cache,
	}, logger)

	// vision
	vc := cfg.Vision
	providers := []services.VisionProvider{
		services.NewGeminiVisionProvider(vc.GeminiKey, vc.GeminiModel, vc.GeminiURL, vc.Timeout),
		services.NewOpenAIVisionProvider(vc.OpenAIKey, vc.OpenAIModel, vc.OpenAIURL, vc.Timeout),
	}
	if rek, err := services.NewRekognitionVisionProvider(ctx, vc.AWSRegion); err != nil {
		logger.Warn("rekognition disabled", "error", err)
	} else {
		providers = append(providers, rek)
	}
	oracle := services.NewVisionOracle(providers, append([]string{vc.DefaultProvider}, vc.Providers...), vc.MockEnabled, vc.Timeout, logger)

	var labels services.LabelScanner
	if vc.LabelOCREnabled {
		detector, err := services.NewGCPTextDetector(ctx, vc.GoogleCreds, vc.Timeout)
		if err != nil {
			logger.Warn("label OCR disabled", "error", err)
		} else {
			defer detector.Close()
			labels = services.NewLabelReader(detector, logger)
		}
	}

	// conflict graph
	graph := services.NewConflictGraph()
	services.SeedConflictGraph(graph)
	if path := cfg.App.ConflictSeedFile; path != "" {
		n, err := services.LoadConflictSeedFile(graph, path)
		if err != nil {
			logger.Fatal("conflict seed file rejected", "path", path, "error", err)
		}
		logger.Info("conflict seed file loaded", "path", path, "edges", n)
	}
	var graphStore *services.GraphStore
	if cfg.Neo4j.URI != "" {
		runner, err := services.NewNeo4jRunner(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			logger.Warn("neo4j disabled", "error", err)
		} else {
			defer runner.Close(context.Background())
			graphStore = services.NewGraphStore(runner, logger)
			if n, err := graphStore.LoadInto(ctx, graph); err != nil {
				logger.Warn("loading neo4j edges failed", "error", err)
			} else {
				logger.Info("neo4j edges loaded", "edges", n)
			}
			if err := graphStore.SyncEdges(ctx, graph.Edges()); err != nil {
				logger.Warn("mirroring edges to neo4j failed", "error", err)
			}
		}
	}

	// realtime, alerts, push
	hub := services.NewRealtimeHub()
	tracker := services.NewScanTracker(cfg.Scan.Cooldown)
	tracker.OnChange(hub.ScanStateChanged)
	mustAdd(logger, scheduler.Add("scan-tracker-prune", "0 */10 * * * *", services.TrackerPruneJob(tracker, time.Hour)))

	var push *services.PushService
	if cfg.Notifications.SNSPlatformARN != "" {
		if push, err = services.NewPushService(ctx, db, cfg.Notifications.AWSRegion, cfg.Notifications.SNSPlatformARN, logger); err != nil {
			logger.Warn("push notifications disabled", "error", err)
			push = nil
		}
	}
	var pusher services.AlertPusher
	if push != nil {
		pusher = push
	}
	alerts := services.NewAlertBus(db, hub, pusher, logger)

	history := services.NewHistoryService(db)
	if cfg.Scan.RetentionDays > 0 {
		retention := time.Duration(cfg.Scan.RetentionDays) * 24 * time.Hour
		mustAdd(logger, scheduler.Add("scan-history-retention", "0 30 3 * * *", services.RetentionJob(history, retention, logger)))
	}
	users := services.NewUserService(db)

	deps := services.PipelineDeps{
		Profiles: users,
		Store:    history,
		Oracle:   oracle,
		Labels:   labels,
		Resolver: resolver,
		Graph:    graph,
		Tracker:  tracker,
		Alerts:   alerts,
	}
	if cfg.Storage.S3Bucket != "" {
		archive, err := utils.NewImageArchive(ctx, cfg.Storage.S3Region, cfg.Storage.S3Bucket, cfg.Storage.CloudFrontURL)
		if err != nil {
			logger.Warn("image archive disabled", "error", err)
		} else {
			deps.Archive = archive
		}
	}
	if cfg.HealthSync.Enabled {
		deps.Sync = services.NewHealthSyncService(cfg.HealthSync.URL, 5*time.Second)
	}
	pipeline := services.NewScanPipeline(deps, logger)

	router := routes.SetupRouter(routes.Deps{
		JWTSecret:   cfg.App.JWTSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         logger,
		Scan:        controllers.NewScanController(pipeline),
		Nutrition:   controllers.NewNutritionController(resolver),
		Graph:       controllers.NewGraphController(graph, graphStore, logger),
		History:     controllers.NewHistoryController(history),
		Analytics:   controllers.NewAnalyticsController(services.NewAnalyticsService(db)),
		User:        controllers.NewUserController(users),
		Device:      controllers.NewDeviceController(push),
		Realtime:    controllers.NewRealtimeController(hub, alerts),
	})

	scheduler.Start()
	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "env", cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	scheduler.Stop(shutdownCtx)
}

func mustAdd(logger *utils.Logger, err error) {
	if err != nil {
		logger.Fatal("scheduler", "error", err)
	}
}
