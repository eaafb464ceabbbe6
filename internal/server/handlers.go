package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/persona-gateway/internal/chat"
	"github.com/xaenox/persona-gateway/internal/models"
	"github.com/xaenox/persona-gateway/internal/provision"
	"github.com/xaenox/persona-gateway/internal/storage"
	"go.uber.org/zap"
)

type createAssistantRequest struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

func (s *Server) handleCreateAssistant(c *gin.Context) {
	var req createAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.UserID == "" || req.Name == "" || req.Instructions == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, name, and instructions are required"})
		return
	}

	assistant, err := s.provisioner.Create(c.Request.Context(), provision.CreateRequest{
		UserID:       req.UserID,
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.logger.Error("Assistant provisioning failed",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to create assistant",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Assistant with file search created and linked.",
		"assistant": assistant,
	})
}

func (s *Server) handleUploadFiles(c *gin.Context) {
	assistantID := c.Param("assistantId")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form", "details": err.Error()})
		return
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	files := make([]provision.UploadedFile, 0, len(uploads))
	for _, upload := range uploads {
		opened, err := upload.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file", "details": err.Error()})
			return
		}
		data, err := io.ReadAll(opened)
		opened.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file", "details": err.Error()})
			return
		}
		files = append(files, provision.UploadedFile{Name: upload.Filename, Data: data})
	}

	batch, err := s.provisioner.AttachKnowledge(c.Request.Context(), assistantID, files)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "assistant or its vector store was not found"})
			return
		}
		s.logger.Error("Knowledge upload failed",
			zap.String("assistant_id", assistantID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to upload files",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "File batch processed.",
		"batch_id": batch.ID,
		"status":   batch.Status,
		"file_counts": gin.H{
			"total":       batch.Total,
			"completed":   batch.Completed,
			"in_progress": batch.InProgress,
			"failed":      batch.Failed,
		},
	})
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.UserID == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and message are required"})
		return
	}

	reply, err := s.orchestrator.HandleTurn(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		s.logger.Error("Chat turn failed",
			zap.String("user_id", req.UserID),
			zap.Error(err))

		var failure *chat.RunFailure
		if errors.As(err, &failure) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "the assistant run failed",
				"details": failure.Reason,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to complete the chat turn",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": chat.FormatHTML(reply)})
}

func (s *Server) handleOrchestrate(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply, err := s.router.Route(c.Request.Context(), req.Message)
	if err != nil {
		s.logger.Error("Orchestrated turn failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to orchestrate the request",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

func (s *Server) handleSaveCharacter(c *gin.Context) {
	userID := c.Param("userId")

	var profile models.CharacterProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := profile.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SaveCharacter(c.Request.Context(), userID, &profile); err != nil {
		s.logger.Error("Failed to save character profile",
			zap.String("user_id", userID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to save character profile",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Character profile saved."})
}

func (s *Server) handleHistory(c *gin.Context) {
	userID := c.Param("userId")

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	messages, err := s.orchestrator.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to load history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// queryInt reads a positive integer query parameter, falling back to
// the default on absence, garbage, or non-positive values.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
