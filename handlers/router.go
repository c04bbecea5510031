package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rick-api/metrics"
)

// RouterConfig holds the settings the HTTP surface needs
type RouterConfig struct {
	APISecret      string
	CORSOrigins    []string
	MetricsEnabled bool
}

// NewRouter wires the chat handler into a gin engine
func NewRouter(cfg RouterConfig, chat *ChatHandler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), CORS(cfg.CORSOrigins))

	router.GET("/health", chat.Health)
	if cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := router.Group("/api", RequireBearer(cfg.APISecret))
	{
		api.POST("/reply", chat.Reply)
		api.GET("/conversations", chat.ListConversations)
		api.GET("/history/:conversation_id", chat.GetHistory)
	}

	return router
}
