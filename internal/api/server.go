package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/api/handler"
	"github.com/user/llm-gateway-proxy/internal/api/middleware"
	"github.com/user/llm-gateway-proxy/internal/backendstats"
	"github.com/user/llm-gateway-proxy/internal/recorder"
	"github.com/user/llm-gateway-proxy/internal/registry"
	"github.com/user/llm-gateway-proxy/internal/router"
	"github.com/user/llm-gateway-proxy/internal/statestore"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

// ServerDeps holds every dependency Dispatch needs to serve a request.
type ServerDeps struct {
	Router          *router.Router
	Registry        *registry.Registry
	States          *statestore.Store
	Stats           *backendstats.Tracker
	LogDir          string
	LogStore        recorder.Store
	EnableResponses bool
	Logger          *zap.Logger
}

// NewServer creates a new API server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())

	dispatch := &handler.Dispatch{
		Router:   deps.Router,
		Registry: deps.Registry,
		States:   deps.States,
		LogDir:   deps.LogDir,
		LogStore: deps.LogStore,
		Logger:   logger,
	}
	admin := &handler.Admin{Registry: deps.Registry, Stats: deps.Stats}

	v1 := r.Group("/v1")
	{
		v1.POST("/chat/completions", dispatch.ChatCompletions)
		v1.POST("/messages", dispatch.Messages)
		v1.POST("/embeddings", dispatch.Embeddings)
		v1.POST("/rerank", dispatch.Rerank)
		v1.GET("/models", dispatch.ListModels)
		if deps.EnableResponses {
			v1.POST("/responses", dispatch.Responses)
		}
	}

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/models", admin.RegisterBackend)
		adminGroup.GET("/backends", admin.ListBackends)
	}

	return &Server{router: r, logger: logger}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts the HTTP server.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.router.Run(addr)
}
