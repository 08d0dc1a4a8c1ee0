package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/client"
	"github.com/coeus-solutions/api-podcast/internal/config"
	"github.com/coeus-solutions/api-podcast/internal/handler"
	"github.com/coeus-solutions/api-podcast/internal/media"
	"github.com/coeus-solutions/api-podcast/internal/middleware"
	"github.com/coeus-solutions/api-podcast/internal/service"
	"github.com/coeus-solutions/api-podcast/internal/token"
	"github.com/coeus-solutions/api-podcast/internal/worker"
	ws "github.com/coeus-solutions/api-podcast/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Server.LogLevel)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub(log.With().Str("component", "websocket").Logger())
	go hub.Run()

	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)
	if !openaiClient.IsConfigured() {
		log.Warn().Msg("OpenAI API key not configured, pipeline jobs will fail")
	}

	var storage client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize object storage")
		}
		storage = s3Client
	} else {
		log.Fatal().Msg("object storage credentials are required")
	}

	ffmpeg := media.NewFFmpeg()

	store := token.NewRedisStore(redisClient)
	meter := token.NewMeter(store, log.With().Str("component", "token-meter").Logger())

	transcribeService := service.NewTranscribeService(storage, openaiClient, ffmpeg, meter, &cfg.Pipeline, &cfg.Tokens, log.With().Str("component", "transcribe").Logger())
	keypointService := service.NewKeyPointService(openaiClient, meter, &cfg.Pipeline, &cfg.Tokens, log.With().Str("component", "keypoints").Logger())
	clipService := service.NewClipService(storage, ffmpeg, cfg.Pipeline.ClipConcurrency, log.With().Str("component", "clips").Logger())
	podcastService := service.NewPodcastService(redisClient, asynqClient, meter, cfg.Tokens.AdmissionEstimate, log.With().Str("component", "podcasts").Logger())
	uploadService := service.NewMediaUploadService(storage, ffmpeg, log.With().Str("component", "uploads").Logger())

	podcastHandler := handler.NewPodcastHandler(podcastService, clipService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService)
	accountHandler := handler.NewAccountHandler(meter)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    500 * 1024 * 1024, // matches the upload handler's limit
	})

	app.Use(recover.New())
	app.Use(requestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		redisOK := redisClient.Ping(c.Context()).Err() == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai": openaiClient.IsConfigured(),
				"redis":  redisOK,
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	api.Post("/media", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Media)
	api.Get("/clips/*", uploadHandler.ClipURL)

	podcasts := api.Group("/podcasts")
	podcasts.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), podcastHandler.Submit)
	podcasts.Get("/jobs/:jobId", podcastHandler.Status)
	podcasts.Get("/jobs/:jobId/result", podcastHandler.Result)
	podcasts.Post("/jobs/:jobId/cancel", podcastHandler.Cancel)
	podcasts.Delete("/jobs/:jobId", podcastHandler.Delete)

	api.Get("/account/balance", accountHandler.Balance)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	pipelineWorker := worker.NewPipelineWorker(
		podcastService,
		transcribeService,
		keypointService,
		clipService,
		meter,
		hub,
		log.With().Str("component", "pipeline-worker").Logger(),
	)
	go startWorkerServer(cfg, pipelineWorker, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func startWorkerServer(cfg *config.Config, pipelineWorker *worker.PipelineWorker, log zerolog.Logger) {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueuePipeline: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info().
			Int("status", c.Response().StatusCode()).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Dur("latency", time.Since(start)).
			Msg("request")
		return err
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
