package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"propdesk/core/internal/api/handlers"
	"propdesk/core/internal/api/middleware"
	"propdesk/core/internal/config"
	"propdesk/core/internal/services"
	"propdesk/core/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client) *gin.Engine {
	scheduleService := services.NewScheduleService(db, cfg, rdb)
	agentService := services.NewAgentService(db)

	// Receipt storage is optional: without an S3 bucket the upload endpoint
	// reports itself unavailable instead of failing startup.
	var receiptStorage storage.IReceiptStorage
	if cfg.AwsS3Bucket != "" {
		var err error
		receiptStorage, err = storage.NewS3ReceiptStorage(cfg)
		if err != nil {
			log.Fatalf("CRITICAL: Failed to initialize S3 receipt storage: %v", err)
		}
	}

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	scheduleHandler := handlers.NewRestScheduleHandler(scheduleService, agentService, receiptStorage)
	authHandler := handlers.NewRestAuthHandler(agentService, cfg)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.POST("/auth/login", authHandler.Login)
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/schedule", scheduleHandler.CreateSchedule)
			authRequired.GET("/schedule/:id", scheduleHandler.GetSchedule)
			authRequired.PATCH("/schedule/:id", scheduleHandler.UpdateSchedule)
			authRequired.DELETE("/schedule/:id", scheduleHandler.DeleteSchedule)
			authRequired.GET("/schedule/:id/instalments", scheduleHandler.GetInstalments)
			authRequired.GET("/schedule/:id/stats", scheduleHandler.GetStatistics)
			authRequired.POST("/schedule/:id/activate", scheduleHandler.ActivateSchedule)
			authRequired.POST("/schedule/:id/cancel", scheduleHandler.CancelSchedule)
			authRequired.POST("/schedule/:id/instalment/:instalmentId/payment", scheduleHandler.RecordPayment)
			authRequired.POST("/schedule/:id/instalment/:instalmentId/receipt-upload", scheduleHandler.ReceiptUpload)

			authRequired.GET("/entity/:type/:id/schedule", scheduleHandler.GetEntitySchedules)
			authRequired.GET("/entity/:type/:id/schedule/active", scheduleHandler.GetActiveEntitySchedule)
			authRequired.GET("/property/:id/schedule", scheduleHandler.GetPropertySchedules)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/agents", authHandler.CreateAgent)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine used for
// operational commands (shutdown, test email retrieval in mock mode).
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // ["kind", "recipient"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			redisKey := fmt.Sprintf("mockemail:%s:%s", args[1], args[0])

			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ {
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey)
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
