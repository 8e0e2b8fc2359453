package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"signhub/signing-backend/internal/config"
	"signhub/signing-backend/internal/identity"
	"signhub/signing-backend/internal/signing"
	"signhub/signing-backend/pkg/blobstore"
	"signhub/signing-backend/pkg/pdfsig"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signature record store
	mongoCtx, mongoCancel := context.WithTimeout(ctx, 10*time.Second)
	defer mongoCancel()

	client, err := mongo.Connect(mongoCtx, mongooptions.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Fatal("Failed to connect to mongo", zap.Error(err))
	}
	defer client.Disconnect(context.Background())

	collection := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	if err := signing.EnsureIndexes(mongoCtx, collection); err != nil {
		logger.Fatal("Failed to create indexes", zap.Error(err))
	}
	repo := signing.NewMongoRepository(collection)

	// Blob storage
	fallback, err := blobstore.NewLocalStore(cfg.Storage.LocalDir)
	if err != nil {
		logger.Fatal("Failed to prepare local blob directory", zap.Error(err))
	}
	store, err := buildBlobStore(ctx, cfg, fallback, logger)
	if err != nil {
		logger.Fatal("Failed to configure blob storage", zap.Error(err))
	}

	// Self-sign engine
	identityStore, err := identity.NewFileStore(cfg.Signing.CertDir, cfg.Signing.BundlePassphrase)
	if err != nil {
		logger.Fatal("Failed to prepare identity store", zap.Error(err))
	}
	authority := identity.NewAuthority(identityStore, cfg.Signing.Organization, logger)
	embedder := pdfsig.NewEmbedder(cfg.Signing.Location, logger)
	sequencer := signing.NewSequencer(authority, embedder, logger)

	pool := signing.NewWorkerPool(cfg.Signing.WorkerQueueSize, logger)
	pool.Start(ctx, cfg.Signing.WorkerPoolSize)

	providers := signing.NewProviderRegistry()

	service := signing.NewService(repo, sequencer, pool, store, fallback, providers, logger)

	refresher := signing.NewRefresher(service, repo, signing.RefresherConfig{
		Schedule: cfg.Signing.RefreshSchedule,
	}, logger)
	if err := refresher.Start(ctx); err != nil {
		logger.Fatal("Failed to start status refresher", zap.Error(err))
	}

	// Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		signing.NewHandler(service).RegisterRoutes(api)
	}

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Drain in-flight requests before stopping the pool; a sign request
	// blocked in Submit must see its pass finish, not a dead queue.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	refresher.Stop()
	cancel()
	pool.Wait()

	logger.Info("Server exiting")
}

func buildBlobStore(ctx context.Context, cfg *config.Config, fallback *blobstore.LocalStore, logger *zap.Logger) (blobstore.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Storage.S3.Region),
		}
		if cfg.Storage.S3.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Storage.S3.AccessKeyID, cfg.Storage.S3.SecretAccessKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.Storage.S3.UsePathStyle
			if cfg.Storage.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			}
		})
		return blobstore.NewS3Store(client, cfg.Storage.S3.Bucket, cfg.Storage.S3.KeyPrefix, cfg.Storage.S3.PresignTTL), nil
	case "docstore":
		return blobstore.NewDocStoreClient(
			cfg.Storage.DocStore.ServerURL,
			cfg.Storage.DocStore.LoginURL,
			cfg.Storage.DocStore.Email,
			cfg.Storage.DocStore.Password,
			cfg.Storage.DocStore.Code,
			logger,
		), nil
	case "local":
		return fallback, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
