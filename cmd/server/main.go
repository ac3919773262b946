package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/chainweave/supply-api/internal/auth"
	"github.com/chainweave/supply-api/internal/database"
	"github.com/chainweave/supply-api/internal/ledger"
	"github.com/chainweave/supply-api/internal/marketplace"
	"github.com/chainweave/supply-api/internal/orders"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/internal/relationship"
	"github.com/chainweave/supply-api/internal/stats"
	"github.com/chainweave/supply-api/internal/transactions"
	"github.com/chainweave/supply-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	_ = godotenv.Load()

	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the supply ledger API server with graceful
// shutdown support. It sets up the database, the shared write lock, all
// services and API routes.
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// The one write lock shared by every service: all mutating operations
	// across the ledger are globally serialized.
	var writeMu sync.Mutex

	// Initialize services and handlers
	authService := auth.NewService(string(auth.JWTSecret()))
	authHandlers := auth.NewGinHandlers(authService)

	registryService := registry.NewService(db, &writeMu)
	registryHandlers := registry.NewGinHandlers(registryService)

	ledgerService := ledger.NewService(db, &writeMu)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	relationshipService := relationship.NewService(db, &writeMu)
	relationshipHandlers := relationship.NewGinHandlers(relationshipService)

	marketplaceService := marketplace.NewService(db, &writeMu)
	marketplaceHandlers := marketplace.NewGinHandlers(marketplaceService)

	ordersService := orders.NewService(db, &writeMu)
	ordersHandlers := orders.NewGinHandlers(ordersService)

	transactionsService := transactions.NewService(db)
	transactionsHandlers := transactions.NewGinHandlers(transactionsService)

	statsService := stats.NewService(db)
	statsHandlers := stats.NewGinHandlers(statsService)

	// Create and start the deadline expiry processor
	expiryProcessor := orders.NewProcessor(ordersService)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go expiryProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, registryHandlers, ledgerHandlers,
		relationshipHandlers, marketplaceHandlers, ordersHandlers,
		transactionsHandlers, statsHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers.
// Routes are grouped by aggregate and protected by JWT authentication;
// the internal group carries the payment gateway's confirmation callback.
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	registryHandlers *registry.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	relationshipHandlers *relationship.GinHandlers,
	marketplaceHandlers *marketplace.GinHandlers,
	ordersHandlers *orders.GinHandlers,
	transactionsHandlers *transactions.GinHandlers,
	statsHandlers *stats.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Authenticated API surface
		api := v1.Group("")
		api.Use(middleware.JWTAuth())
		{
			companies := api.Group("/companies")
			{
				companies.POST("", registryHandlers.RegisterHandler())
				companies.PUT("", registryHandlers.UpdateHandler())
				companies.GET("", registryHandlers.ListHandler())
				companies.GET("/:address", registryHandlers.GetHandler())
				companies.GET("/:address/registered", registryHandlers.IsRegisteredHandler())
				companies.GET("/:address/products", ledgerHandlers.ProductsByOwnerHandler())
				companies.GET("/:address/relationships/active", relationshipHandlers.ActiveForHandler())
				companies.GET("/:address/relationships/pending", relationshipHandlers.PendingForHandler())
				companies.GET("/:address/orders/bought", ordersHandlers.OrdersByBuyerHandler())
				companies.GET("/:address/orders/sold", ordersHandlers.OrdersBySellerHandler())
				companies.GET("/:address/transactions", transactionsHandlers.ByParticipantHandler())
			}

			products := api.Group("/products")
			{
				products.POST("", ledgerHandlers.CreateProductHandler())
				products.POST("/manufacture", ledgerHandlers.ManufactureHandler())
				products.POST("/:product_id/transfer", ledgerHandlers.TransferHandler())
				products.GET("/:product_id", ledgerHandlers.GetProductHandler())
				products.GET("/:product_id/traceability", ledgerHandlers.TraceabilityHandler())
			}

			relationships := api.Group("/relationships")
			{
				relationships.POST("", relationshipHandlers.RequestHandler())
				relationships.POST("/:relationship_id/negotiate", relationshipHandlers.NegotiateHandler())
				relationships.POST("/:relationship_id/accept", relationshipHandlers.AcceptHandler())
				relationships.POST("/:relationship_id/reject", relationshipHandlers.RejectHandler())
				relationships.GET("/:relationship_id", relationshipHandlers.GetHandler())
				relationships.GET("/:relationship_id/history", relationshipHandlers.HistoryHandler())
			}

			orderRoutes := api.Group("/orders")
			{
				orderRoutes.POST("/relationship", ordersHandlers.PlaceRelationshipOrderHandler())
				orderRoutes.POST("/marketplace", ordersHandlers.PlaceMarketplaceOrderHandler())
				orderRoutes.POST("/:order_id/approve", ordersHandlers.ApproveHandler())
				orderRoutes.POST("/:order_id/reject", ordersHandlers.RejectHandler())
				orderRoutes.POST("/:order_id/events", ordersHandlers.AddDeliveryEventHandler())
				orderRoutes.POST("/:order_id/pay", ordersHandlers.PayHandler())
				orderRoutes.GET("/:order_id", ordersHandlers.GetOrderHandler())
				orderRoutes.GET("/:order_id/events", ordersHandlers.DeliveryHistoryHandler())
			}

			listings := api.Group("/listings")
			{
				listings.POST("", marketplaceHandlers.ListHandler())
				listings.POST("/:listing_id/buy", marketplaceHandlers.BuyHandler())
				listings.DELETE("/:listing_id", marketplaceHandlers.RemoveHandler())
				listings.GET("/:listing_id", marketplaceHandlers.GetHandler())
				listings.GET("", marketplaceHandlers.ActiveListingsHandler())
			}

			api.GET("/transactions/:transaction_id", transactionsHandlers.GetHandler())
			api.GET("/stats", statsHandlers.StatsHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/payments/:order_id", ordersHandlers.ExternalPaymentHandler())
		}
	}
}
