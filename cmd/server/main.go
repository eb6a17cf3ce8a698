package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postloom/publisher-api/configs"
	"github.com/postloom/publisher-api/internal/api/handlers"
	"github.com/postloom/publisher-api/internal/api/middleware"
	job "github.com/postloom/publisher-api/internal/jobs"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/queue"
	"github.com/postloom/publisher-api/internal/repository"
	"github.com/postloom/publisher-api/internal/service"
	"github.com/postloom/publisher-api/internal/tokenstore"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	accountRepo := repository.NewAccountRepository(db)
	postRepo := repository.NewPostRepository(db)
	recommendationRepo := repository.NewRecommendationRepository(db)
	postingHistoryRepo := repository.NewPostingHistoryRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	store := tokenstore.New(accountRepo)

	connectors := map[models.Provider]service.Connector{
		models.ProviderX:         service.NewXService(*cfg, store, nil),
		models.ProviderLinkedIn:  service.NewLinkedInService(*cfg, store, nil),
		models.ProviderFacebook:  service.NewFacebookService(*cfg, store, nil),
		models.ProviderInstagram: service.NewInstagramService(*cfg, store, nil),
		models.ProviderReddit:    service.NewRedditService(*cfg, store, nil),
		models.ProviderPinterest: service.NewPinterestService(*cfg, store, nil),
		models.ProviderBlog:      service.NewBlogService(*cfg, store, nil),
	}

	publicationService := service.NewPublicationService(postRepo, recommendationRepo, postingHistoryRepo)
	hubService := service.NewHubService(connectors, publicationService)
	postService := service.NewPostService(db, postRepo)
	mediaService := service.NewMediaService(*cfg)
	apiKeyService := service.NewApiKeyService(apiKeyRepo)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	hub := handlers.NewHubHandler(hubService)
	api.Post("/connections/:provider", hub.Connect)
	api.Get("/connections/:provider/status", hub.Status)
	api.Post("/connections/:provider/logout", hub.Logout)
	api.Post("/connections/:provider/target", hub.SelectTarget)
	api.Get("/connections/:provider/target", hub.SelectedTarget)
	api.Post("/connections/:provider/publish", hub.Publish)

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media/upload", media.UploadMedia)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, hubService)

	// queue
	queueW := queue.NewQueue(hubService)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
