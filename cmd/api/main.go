package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/event"
	"storefront/internal/infra/metrics"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .envはローカル開発用。なくても起動する
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := newLogger(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Brand{},
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		log.Fatal("auto migrate failed", zap.Error(err))
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	brandRepo := infraRepo.NewBrandGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//Redis（REDIS_URL未設定ならキャッシュなしで動く）
	var listCache usecase.ProductListCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connect failed", zap.Error(err))
		}
		listCache = cache.NewProductCache(redisClient, 5*time.Minute, log)
	}

	//Kafka（KAFKA_BROKERS未設定なら発行なしで動く）
	publisher := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	defer publisher.Close()

	m := metrics.NewServerMetrics("api")

	//Usecase生成
	pricing := usecase.Pricing{
		TaxRateBP:       cfg.TaxRateBP,
		ShippingFee:     cfg.ShippingFee,
		FreeShippingMin: cfg.FreeShippingMin,
	}
	authUC := usecase.NewAuthUsecase(userRepo, cfg.JWTSecret, 15*time.Minute)
	catalogUC := usecase.NewCatalogUsecase(productRepo, categoryRepo, brandRepo, inventoryRepo, auditRepo, listCache)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, cfg.CartMergePolicy)
	orderUC := usecase.NewOrderUsecase(txManager, pricing, publisher)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, publisher)

	//Handler生成
	srv := server.New(log, m)
	srv.RegisterRoutes(cfg, server.Handlers{
		Auth:         handler.NewAuthHandler(authUC, log),
		Product:      handler.NewProductHandler(catalogUC, log),
		Cart:         handler.NewCartHandler(cartUC, log),
		Order:        handler.NewOrderHandler(orderUC, log),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC, log),
		AdminProduct: handler.NewAdminProductHandler(catalogUC, log),
	})

	//Server起動（SIGINT/SIGTERMでgraceful shutdown）
	go func() {
		if err := srv.Start(":" + cfg.Port); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
