package provider

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the surface of the remote execution provider the gateway
// depends on. The production implementation wraps the OpenAI
// Assistants API; tests substitute fakes.
type Client interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID, content string) error

	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	// LatestRun returns the newest run on the thread, if any.
	LatestRun(ctx context.Context, threadID string) (Run, bool, error)
	CancelRun(ctx context.Context, threadID, runID string) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)
	// RunMessages lists the thread messages produced by one run,
	// newest first.
	RunMessages(ctx context.Context, threadID, runID string) ([]ThreadMessage, error)

	CreateAssistant(ctx context.Context, spec AssistantSpec) (string, error)
	AttachVectorStore(ctx context.Context, assistantID, vectorStoreID string) error
	DeleteAssistant(ctx context.Context, assistantID string) error

	CreateVectorStore(ctx context.Context, name string) (string, error)
	DeleteVectorStore(ctx context.Context, vectorStoreID string) error
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
	AttachFiles(ctx context.Context, vectorStoreID string, fileIDs []string) (FileBatch, error)
	FileContent(ctx context.Context, fileID string) (io.ReadCloser, error)

	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Run is the provider-side run state the driver cares about.
type Run struct {
	ID        string
	Status    openai.RunStatus
	ToolCalls []ToolCall
	LastError string
}

// Terminal reports whether the run can no longer change state.
func (r Run) Terminal() bool {
	switch r.Status {
	case openai.RunStatusCompleted, openai.RunStatusFailed,
		openai.RunStatusExpired, openai.RunStatusCancelled, openai.RunStatusIncomplete:
		return true
	}
	return false
}

// Active reports whether the run is still making progress and should
// be polled again.
func (r Run) Active() bool {
	switch r.Status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return true
	}
	return false
}

// ToolCall is one pending external-action request emitted by a run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolOutput answers one tool call.
type ToolOutput struct {
	ToolCallID string
	Output     string
}

// Segment types within a thread message.
const (
	SegmentText  = "text"
	SegmentImage = "image_file"
)

// Segment is one content part of a thread message.
type Segment struct {
	Type string
	// Text and Annotations are set for text segments.
	Text        string
	Annotations []Annotation
	// FileID is set for image segments.
	FileID string
}

// Annotation is an inline citation span embedded in reply text. Text
// holds the literal matched span as it appears in the message body.
type Annotation struct {
	Text string
}

// ThreadMessage is one assistant-authored message with its ordered
// content segments.
type ThreadMessage struct {
	ID       string
	Role     string
	Segments []Segment
}

// AssistantSpec describes a remote assistant identity to provision.
type AssistantSpec struct {
	Name         string
	Instructions string
	Model        string
	// FunctionTools are registered alongside the built-in
	// code_interpreter and file_search tools.
	FunctionTools []openai.FunctionDefinition
}

// FileBatch summarizes one vector-store file ingestion batch.
type FileBatch struct {
	ID         string
	Status     string
	Total      int
	Completed  int
	InProgress int
	Failed     int
}
