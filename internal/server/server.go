package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/persona-gateway/internal/agents"
	"github.com/xaenox/persona-gateway/internal/chat"
	"github.com/xaenox/persona-gateway/internal/provision"
	"github.com/xaenox/persona-gateway/internal/storage"
	"go.uber.org/zap"
)

// Server is the gateway's HTTP surface.
type Server struct {
	orchestrator *chat.Orchestrator
	provisioner  *provision.Service
	router       *agents.Router
	store        storage.Storage
	logger       *zap.Logger
	engine       *gin.Engine
}

func New(orchestrator *chat.Orchestrator, provisioner *provision.Service, router *agents.Router, store storage.Storage, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		orchestrator: orchestrator,
		provisioner:  provisioner,
		router:       router,
		store:        store,
		logger:       logger,
		engine:       engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api/v1")
	api.POST("/assistants", s.handleCreateAssistant)
	api.POST("/assistants/:assistantId/files", s.handleUploadFiles)
	api.POST("/chat", s.handleChat)
	api.POST("/orchestrate", s.handleOrchestrate)
	api.PUT("/users/:userId/character", s.handleSaveCharacter)
	api.GET("/users/:userId/messages", s.handleHistory)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	s.logger.Info("Gateway listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
