package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-redis/redis/v7"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/adonese/storewatch/alert"
	"github.com/adonese/storewatch/dashboard"
	"github.com/adonese/storewatch/gateway"
	"github.com/adonese/storewatch/probe"
	"github.com/adonese/storewatch/sheet"
	"github.com/adonese/storewatch/store"
	"github.com/adonese/storewatch/track_fields"
	"github.com/adonese/storewatch/tracker"
	"github.com/adonese/storewatch/utils"
)

var (
	logrusLogger   = logrus.New()
	cfg            track_fields.Config
	db             *store.DB
	storeService   *store.Store
	redisClient    *redis.Client
	trackerService *tracker.Service
	dashService    dashboard.Service
	auth           gateway.JWTAuth
)

// parseConfig loads config.yaml (or the path in STOREWATCH_CONFIG), then
// applies defaults and the container env overrides on top.
func parseConfig(data *track_fields.Config) error {
	path := os.Getenv("STOREWATCH_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	buf, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(buf, data); err != nil {
			logrusLogger.Printf("error in parsing config file %s: %v", path, err)
			return err
		}
	} else {
		logrusLogger.Printf("config file %s not read, continuing on defaults: %v", path, err)
	}
	// Optional secrets overlay: same schema, wins over config.yaml.
	if buf, err := os.ReadFile(".secrets.yaml"); err == nil {
		if err := yaml.Unmarshal(buf, data); err != nil {
			logrusLogger.Printf("error in parsing secrets overlay: %v", err)
			return err
		}
	}
	data.Defaults()
	data.FromEnv()
	return nil
}

// GetMainEngine function responsible for getting all of our routes to be delivered for gin
func GetMainEngine() *gin.Engine {
	if !cfg.IsDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	route := gin.New()
	route.Use(gin.Recovery())
	route.Use(gateway.Instrumentation())
	route.Use(gateway.RequestLogger(logrusLogger, gateway.LogSamplingConfig{
		Tick:  time.Duration(cfg.LogSamplingTickMs) * time.Millisecond,
		After: time.Duration(cfg.LogSamplingAfterMs) * time.Millisecond,
	}))
	route.Use(gateway.OptionsMiddleware)
	route.HandleMethodNotAllowed = true

	route.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": true})
	})
	route.GET("/metrics", gin.WrapH(promhttp.Handler()))
	route.POST("/generate_api_key", dashService.IssueAPIKey)
	route.POST("/login", dashService.Login)

	dashboardGroup := route.Group("/dashboard")
	{
		dashboardGroup.GET("/status", dashService.Status)
		dashboardGroup.GET("/runs", dashService.Runs)
		dashboardGroup.GET("/runs/:id", dashService.RunByID)
		dashboardGroup.GET("/history", dashService.History)
		dashboardGroup.GET("/count", dashService.Count)
		dashboardGroup.GET("/export", dashService.Export)

		dashboardGroup.Use(auth.AuthMiddleware())
		dashboardGroup.POST("/run", dashService.TriggerRun)
		dashboardGroup.POST("/devices", dashService.RegisterDevice)
	}
	return route
}

func init() {
	var err error

	logrusLogger.SetFormatter(&logrus.JSONFormatter{})
	logrusLogger.SetReportCaller(true)

	if err = parseConfig(&cfg); err != nil {
		logrusLogger.Printf("error in parsing file: %v", err)
	}
	if cfg.IsDebug {
		logrusLogger.Level = logrus.DebugLevel
	}

	db, err = store.OpenFromConfig(cfg.DatabaseURL, cfg.DatabasePath, cfg.DatabaseDriver)
	if err != nil {
		logrusLogger.Fatalf("error in connecting to db: %v", err)
	}
	if err = store.Migrate(context.Background(), db); err != nil {
		logrusLogger.Fatalf("error in migrating db: %v", err)
	}
	storeService = store.New(db)

	redisClient = utils.GetRedis(cfg.RedisAddress)

	binding.Validator = new(track_fields.DefaultValidator)
	track_fields.InitMetrics()

	tokens := alert.TokenSource(storeService)
	if len(cfg.AlertTokens) > 0 {
		tokens = alert.StaticTokens(cfg.AlertTokens)
	}
	alerts := alert.New(context.Background(), cfg, tokens, logrusLogger)

	auth = gateway.JWTAuth{Config: cfg}
	auth.Init()

	trackerService = &tracker.Service{
		Store:  storeService,
		Prober: probe.New(cfg, logrusLogger),
		Redis:  redisClient,
		Alerts: alerts,
		Logger: logrusLogger,
		Config: cfg,
	}
	dashService = dashboard.Service{
		Store:   storeService,
		Redis:   redisClient,
		Tracker: trackerService,
		Auth:    &auth,
		Logger:  logrusLogger,
	}
}

// connectSheets is deferred out of init so the dashboard can still boot and
// serve history when the service account file is absent.
func connectSheets(ctx context.Context) error {
	sheets, err := sheet.New(ctx, cfg, logrusLogger)
	if err != nil {
		return err
	}
	trackerService.Sheets = sheets
	return nil
}
