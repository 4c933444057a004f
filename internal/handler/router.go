package handler

import (
	"net/http"

	"bizledger/internal/app"
	"bizledger/internal/middleware"
	"bizledger/internal/websocket"
	"bizledger/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	DB          *gorm.DB
	Services    *app.Services
	Replication Replication
	Hub         *websocket.Hub
	Auth        *middleware.Authenticator
	Authz       *middleware.Authorizer
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", health(cfg.DB))
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			websocket.ServeWs(cfg.Hub, c, cfg.Auth, cfg.Authz)
		})
	}

	api := router.Group("", cfg.Auth.Authenticate())
	s := cfg.Services
	NewDocumentHandler(s.Documents, s.Transform).RegisterRoutes(api, cfg.Authz)
	NewPaymentHandler(s.Payments).RegisterRoutes(api, cfg.Authz)
	NewStockHandler(s.Stock).RegisterRoutes(api, cfg.Authz)
	NewCatalogHandler(s.Catalog).RegisterRoutes(api, cfg.Authz)
	NewAuditHandler(s.Audit).RegisterRoutes(api, cfg.Authz)
	if cfg.Replication != nil {
		NewSyncHandler(s.Snapshots, cfg.Replication).RegisterRoutes(api, cfg.Authz)
	}

	return router
}

// health
// @Summary  Health check
// @Tags     system
// @Produce  json
// @Success  200  {object}  response.Response
// @Failure  503  {object}  response.Response
// @Router   /health [get]
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "database unavailable"))
				return
			}
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": "OK"}))
	}
}
