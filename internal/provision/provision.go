// Package provision registers assistant personas with the remote
// provider: the execution identity, its knowledge base, and the
// database row binding both to a user.
package provision

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xaenox/persona-gateway/internal/models"
	"github.com/xaenox/persona-gateway/internal/provider"
	"github.com/xaenox/persona-gateway/internal/storage"
	"go.uber.org/zap"
)

type Service struct {
	client provider.Client
	store  storage.Storage
	logger *zap.Logger

	// FunctionTools are registered on every provisioned assistant, in
	// addition to file_search and code_interpreter.
	FunctionTools []openai.FunctionDefinition
}

func NewService(client provider.Client, store storage.Storage, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		logger: logger,
	}
}

type CreateRequest struct {
	UserID       string
	Name         string
	Description  string
	Instructions string
}

// Create provisions the assistant end to end: remote identity, vector
// store, the link between them, and the persisted row (the user's
// first assistant becomes their default). Any failure after the first
// remote creation triggers best-effort deletion of whatever already
// exists, and the original error is surfaced.
func (s *Service) Create(ctx context.Context, req CreateRequest) (assistant *models.Assistant, err error) {
	var (
		assistantID   string
		vectorStoreID string
	)
	defer func() {
		if err != nil {
			s.cleanup(assistantID, vectorStoreID)
		}
	}()

	assistantID, err = s.client.CreateAssistant(ctx, provider.AssistantSpec{
		Name:          req.Name,
		Instructions:  req.Instructions,
		FunctionTools: s.FunctionTools,
	})
	if err != nil {
		return nil, fmt.Errorf("create assistant: %w", err)
	}
	s.logger.Info("Created assistant", zap.String("assistant_id", assistantID))

	vectorStoreID, err = s.client.CreateVectorStore(ctx, fmt.Sprintf("Vector store for %s", req.Name))
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	s.logger.Info("Created vector store", zap.String("vector_store_id", vectorStoreID))

	if err = s.client.AttachVectorStore(ctx, assistantID, vectorStoreID); err != nil {
		return nil, fmt.Errorf("link vector store: %w", err)
	}

	assistant = &models.Assistant{
		UserID:        req.UserID,
		AssistantID:   assistantID,
		Name:          req.Name,
		Description:   req.Description,
		Instructions:  req.Instructions,
		VectorStoreID: vectorStoreID,
	}
	if err = s.store.CreateAssistant(ctx, assistant); err != nil {
		return nil, fmt.Errorf("persist assistant: %w", err)
	}

	return assistant, nil
}

// cleanup deletes whatever remote identities a failed Create left
// behind. Failures here are logged, never allowed to mask the
// original error. Uses a fresh context: the request's may already be
// dead.
func (s *Service) cleanup(assistantID, vectorStoreID string) {
	ctx := context.Background()
	if assistantID != "" {
		if err := s.client.DeleteAssistant(ctx, assistantID); err != nil {
			s.logger.Error("Cleanup: failed to delete assistant",
				zap.String("assistant_id", assistantID),
				zap.Error(err))
		} else {
			s.logger.Info("Cleanup: deleted assistant", zap.String("assistant_id", assistantID))
		}
	}
	if vectorStoreID != "" {
		if err := s.client.DeleteVectorStore(ctx, vectorStoreID); err != nil {
			s.logger.Error("Cleanup: failed to delete vector store",
				zap.String("vector_store_id", vectorStoreID),
				zap.Error(err))
		} else {
			s.logger.Info("Cleanup: deleted vector store", zap.String("vector_store_id", vectorStoreID))
		}
	}
}

// deleteFiles removes uploads that never made it into a vector store.
// Same contract as cleanup: best effort, logged, fresh context.
func (s *Service) deleteFiles(fileIDs []string) {
	ctx := context.Background()
	for _, fileID := range fileIDs {
		if err := s.client.DeleteFile(ctx, fileID); err != nil {
			s.logger.Error("Cleanup: failed to delete file",
				zap.String("file_id", fileID),
				zap.Error(err))
		} else {
			s.logger.Info("Cleanup: deleted file", zap.String("file_id", fileID))
		}
	}
}

// UploadedFile is one knowledge file to attach.
type UploadedFile struct {
	Name string
	Data []byte
}

// AttachKnowledge uploads the files and adds them to the assistant's
// vector store in one batch.
func (s *Service) AttachKnowledge(ctx context.Context, assistantID string, files []UploadedFile) (provider.FileBatch, error) {
	assistant, err := s.store.GetAssistantByRemoteID(ctx, assistantID)
	if err != nil {
		return provider.FileBatch{}, err
	}
	if assistant.VectorStoreID == "" {
		return provider.FileBatch{}, storage.ErrNotFound
	}

	fileIDs := make([]string, 0, len(files))
	for _, file := range files {
		fileID, err := s.client.UploadFile(ctx, file.Name, file.Data)
		if err != nil {
			s.deleteFiles(fileIDs)
			return provider.FileBatch{}, fmt.Errorf("upload %s: %w", file.Name, err)
		}
		fileIDs = append(fileIDs, fileID)
	}

	batch, err := s.client.AttachFiles(ctx, assistant.VectorStoreID, fileIDs)
	if err != nil {
		s.deleteFiles(fileIDs)
		return provider.FileBatch{}, fmt.Errorf("attach files to %s: %w", assistant.VectorStoreID, err)
	}

	s.logger.Info("Attached knowledge files",
		zap.String("assistant_id", assistantID),
		zap.String("vector_store_id", assistant.VectorStoreID),
		zap.Int("files", len(fileIDs)),
		zap.String("batch_status", batch.Status))
	return batch, nil
}
