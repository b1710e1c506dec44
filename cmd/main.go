package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"labloan/internal/config"
	"labloan/internal/handlers"
	"labloan/internal/notify"
	"labloan/internal/repositories"
	"labloan/internal/services"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := repositories.Migrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("redis: %v", err)
		}
		cancel()
		notifier = notify.NewRedisPublisher(rdb, cfg.EventChannel)
		defer rdb.Close()
	}

	userRepo := repositories.NewUserRepository(db)
	categoryRepo := repositories.NewCategoryRepository(db)
	equipmentRepo := repositories.NewEquipmentRepository(db)
	borrowingRepo := repositories.NewBorrowingRepository(db)
	queueRepo := repositories.NewQueueRepository(db)
	returnRepo := repositories.NewReturnRepository(db)
	penaltyRepo := repositories.NewPenaltyRepository(db)

	availability := services.NewAvailabilityCalculator(db, equipmentRepo, borrowingRepo)
	validator := services.NewBorrowingValidator(cfg.Rules, availability, userRepo, equipmentRepo, borrowingRepo, penaltyRepo)
	queue := services.NewQueueManager(availability, validator, queueRepo, borrowingRepo)
	borrowingService := services.NewBorrowingService(db, cfg.Rules, availability, validator, queue, notifier, equipmentRepo, borrowingRepo, penaltyRepo)
	returnService := services.NewReturnService(db, cfg.Rules, availability, queue, notifier, equipmentRepo, borrowingRepo, returnRepo, penaltyRepo)
	penaltyService := services.NewPenaltyService(db, penaltyRepo)
	catalogService := services.NewCatalogService(db, categoryRepo, equipmentRepo, userRepo)

	router := gin.Default()
	if len(cfg.WebOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.WebOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	handlers.RegisterRoutes(router, cfg.Rules, catalogService, borrowingService, returnService, penaltyService, queue)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
