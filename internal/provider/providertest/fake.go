// Package providertest provides a scriptable in-memory provider.Client
// for tests.
package providertest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xaenox/persona-gateway/internal/provider"
)

// Fake is a provider.Client whose behavior is driven by optional
// function fields. Unset fields fall back to a minimal in-memory
// implementation. Calls are recorded for assertions.
type Fake struct {
	mu sync.Mutex

	CreateThreadFn      func(ctx context.Context) (string, error)
	CreateRunFn         func(ctx context.Context, threadID, assistantID string) (provider.Run, error)
	RetrieveRunFn       func(ctx context.Context, threadID, runID string) (provider.Run, error)
	LatestRunFn         func(ctx context.Context, threadID string) (provider.Run, bool, error)
	CancelRunFn         func(ctx context.Context, threadID, runID string) (provider.Run, error)
	SubmitToolOutputsFn func(ctx context.Context, threadID, runID string, outputs []provider.ToolOutput) (provider.Run, error)
	RunMessagesFn       func(ctx context.Context, threadID, runID string) ([]provider.ThreadMessage, error)
	CreateAssistantFn   func(ctx context.Context, spec provider.AssistantSpec) (string, error)
	AttachVectorStoreFn func(ctx context.Context, assistantID, vectorStoreID string) error
	DeleteAssistantFn   func(ctx context.Context, assistantID string) error
	CreateVectorStoreFn func(ctx context.Context, name string) (string, error)
	DeleteVectorStoreFn func(ctx context.Context, vectorStoreID string) error
	UploadFileFn        func(ctx context.Context, name string, data []byte) (string, error)
	DeleteFileFn        func(ctx context.Context, fileID string) error
	AttachFilesFn       func(ctx context.Context, vectorStoreID string, fileIDs []string) (provider.FileBatch, error)
	FileContentFn       func(ctx context.Context, fileID string) (io.ReadCloser, error)
	ChatCompletionFn    func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)

	// Recorded calls.
	CreatedThreads   int
	UserMessages     []string
	SubmittedOutputs [][]provider.ToolOutput
	CancelledRuns    []string
	DeletedAssistants   []string
	DeletedVectorStores []string
	DeletedFiles        []string

	threadSeq int
	runSeq    int
}

var _ provider.Client = (*Fake)(nil)

func (f *Fake) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.CreatedThreads++
	f.threadSeq++
	seq := f.threadSeq
	f.mu.Unlock()

	if f.CreateThreadFn != nil {
		return f.CreateThreadFn(ctx)
	}
	return fmt.Sprintf("thread_%d", seq), nil
}

func (f *Fake) AddUserMessage(ctx context.Context, threadID, content string) error {
	f.mu.Lock()
	f.UserMessages = append(f.UserMessages, content)
	f.mu.Unlock()
	return nil
}

func (f *Fake) CreateRun(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
	if f.CreateRunFn != nil {
		return f.CreateRunFn(ctx, threadID, assistantID)
	}
	f.mu.Lock()
	f.runSeq++
	seq := f.runSeq
	f.mu.Unlock()
	return provider.Run{ID: fmt.Sprintf("run_%d", seq), Status: openai.RunStatusQueued}, nil
}

func (f *Fake) RetrieveRun(ctx context.Context, threadID, runID string) (provider.Run, error) {
	if f.RetrieveRunFn != nil {
		return f.RetrieveRunFn(ctx, threadID, runID)
	}
	return provider.Run{ID: runID, Status: openai.RunStatusCompleted}, nil
}

func (f *Fake) LatestRun(ctx context.Context, threadID string) (provider.Run, bool, error) {
	if f.LatestRunFn != nil {
		return f.LatestRunFn(ctx, threadID)
	}
	return provider.Run{}, false, nil
}

func (f *Fake) CancelRun(ctx context.Context, threadID, runID string) (provider.Run, error) {
	f.mu.Lock()
	f.CancelledRuns = append(f.CancelledRuns, runID)
	f.mu.Unlock()

	if f.CancelRunFn != nil {
		return f.CancelRunFn(ctx, threadID, runID)
	}
	return provider.Run{ID: runID, Status: openai.RunStatusCancelling}, nil
}

func (f *Fake) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []provider.ToolOutput) (provider.Run, error) {
	f.mu.Lock()
	f.SubmittedOutputs = append(f.SubmittedOutputs, outputs)
	f.mu.Unlock()

	if f.SubmitToolOutputsFn != nil {
		return f.SubmitToolOutputsFn(ctx, threadID, runID, outputs)
	}
	return provider.Run{ID: runID, Status: openai.RunStatusInProgress}, nil
}

func (f *Fake) RunMessages(ctx context.Context, threadID, runID string) ([]provider.ThreadMessage, error) {
	if f.RunMessagesFn != nil {
		return f.RunMessagesFn(ctx, threadID, runID)
	}
	return nil, nil
}

func (f *Fake) CreateAssistant(ctx context.Context, spec provider.AssistantSpec) (string, error) {
	if f.CreateAssistantFn != nil {
		return f.CreateAssistantFn(ctx, spec)
	}
	return "asst_" + strings.ToLower(spec.Name), nil
}

func (f *Fake) AttachVectorStore(ctx context.Context, assistantID, vectorStoreID string) error {
	if f.AttachVectorStoreFn != nil {
		return f.AttachVectorStoreFn(ctx, assistantID, vectorStoreID)
	}
	return nil
}

func (f *Fake) DeleteAssistant(ctx context.Context, assistantID string) error {
	f.mu.Lock()
	f.DeletedAssistants = append(f.DeletedAssistants, assistantID)
	f.mu.Unlock()

	if f.DeleteAssistantFn != nil {
		return f.DeleteAssistantFn(ctx, assistantID)
	}
	return nil
}

func (f *Fake) CreateVectorStore(ctx context.Context, name string) (string, error) {
	if f.CreateVectorStoreFn != nil {
		return f.CreateVectorStoreFn(ctx, name)
	}
	return "vs_test", nil
}

func (f *Fake) DeleteVectorStore(ctx context.Context, vectorStoreID string) error {
	f.mu.Lock()
	f.DeletedVectorStores = append(f.DeletedVectorStores, vectorStoreID)
	f.mu.Unlock()

	if f.DeleteVectorStoreFn != nil {
		return f.DeleteVectorStoreFn(ctx, vectorStoreID)
	}
	return nil
}

func (f *Fake) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	if f.UploadFileFn != nil {
		return f.UploadFileFn(ctx, name, data)
	}
	return "file_" + name, nil
}

func (f *Fake) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	f.DeletedFiles = append(f.DeletedFiles, fileID)
	f.mu.Unlock()

	if f.DeleteFileFn != nil {
		return f.DeleteFileFn(ctx, fileID)
	}
	return nil
}

func (f *Fake) AttachFiles(ctx context.Context, vectorStoreID string, fileIDs []string) (provider.FileBatch, error) {
	if f.AttachFilesFn != nil {
		return f.AttachFilesFn(ctx, vectorStoreID, fileIDs)
	}
	return provider.FileBatch{
		ID:        "batch_test",
		Status:    "completed",
		Total:     len(fileIDs),
		Completed: len(fileIDs),
	}, nil
}

func (f *Fake) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if f.FileContentFn != nil {
		return f.FileContentFn(ctx, fileID)
	}
	return io.NopCloser(strings.NewReader("fake-bytes")), nil
}

func (f *Fake) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.ChatCompletionFn != nil {
		return f.ChatCompletionFn(ctx, req)
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "ok"}},
		},
	}, nil
}
