package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mana-market/internal/config"
	"mana-market/internal/database"
	"mana-market/internal/handlers"
	"mana-market/internal/jobs"
	"mana-market/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db := database.GetDB()

	// Initialize services
	ledgerService := services.NewLedgerService(db)
	liquidityService := services.NewLiquidityService(db, cfg.Market.HouseUserID)
	loanService := services.NewLoanService(db)
	redemptionService := services.NewRedemptionService(db, loanService)
	resolutionService := services.NewResolutionService(db, ledgerService, cfg.Market.ResolutionFeeRate)

	// Initialize handlers
	marketHandler := handlers.NewMarketHandler(liquidityService, redemptionService, resolutionService)
	liquidityHandler := handlers.NewLiquidityHandler(liquidityService)
	adminHandler := handlers.NewAdminHandler(resolutionService)

	// Start subsidy drizzle job
	drizzleJob := jobs.NewDrizzleJob(liquidityService, cfg.Jobs.DrizzleInterval, cfg.Jobs.DrizzleWorkers)
	go drizzleJob.Start()

	// Start loan accrual job
	loanAccrualJob := jobs.NewLoanAccrualJob(loanService, cfg.Jobs.LoanAccrualInterval, cfg.Jobs.DrizzleWorkers)
	go loanAccrualJob.Start()

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Contract routes
	api := router.Group("/api")
	{
		api.GET("/contracts/:id", marketHandler.GetContract)
		api.GET("/contracts/:id/quote", marketHandler.Quote)
		api.POST("/contracts/:id/subsidy", liquidityHandler.AddSubsidy)
		api.POST("/contracts/:id/subsidy/remove", liquidityHandler.RemoveSubsidy)
		api.POST("/contracts/:id/redeem", marketHandler.RedeemShares)
		api.POST("/contracts/:id/resolve", marketHandler.Resolve)
	}

	// Admin routes
	admin := router.Group("/api/admin")
	{
		admin.POST("/reconcile-fees", adminHandler.ReconcileFees)
		admin.POST("/contracts/:id/unresolve", adminHandler.Unresolve)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	drizzleJob.Stop()
	loanAccrualJob.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
