package provider

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Client against the OpenAI Assistants API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (o *OpenAI) CreateThread(ctx context.Context) (string, error) {
	thread, err := o.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (o *OpenAI) AddUserMessage(ctx context.Context, threadID, content string) error {
	_, err := o.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (o *OpenAI) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	run, err := o.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: assistantID,
	})
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return convertRun(run), nil
}

func (o *OpenAI) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := o.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run: %w", err)
	}
	return convertRun(run), nil
}

func (o *OpenAI) LatestRun(ctx context.Context, threadID string) (Run, bool, error) {
	limit := 1
	order := "desc"
	list, err := o.client.ListRuns(ctx, threadID, openai.Pagination{
		Limit: &limit,
		Order: &order,
	})
	if err != nil {
		return Run{}, false, fmt.Errorf("list runs: %w", err)
	}
	if len(list.Runs) == 0 {
		return Run{}, false, nil
	}
	return convertRun(list.Runs[0]), true, nil
}

func (o *OpenAI) CancelRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := o.client.CancelRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("cancel run: %w", err)
	}
	return convertRun(run), nil
}

func (o *OpenAI) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error) {
	converted := make([]openai.ToolOutput, 0, len(outputs))
	for _, out := range outputs {
		converted = append(converted, openai.ToolOutput{
			ToolCallID: out.ToolCallID,
			Output:     out.Output,
		})
	}
	run, err := o.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: converted,
	})
	if err != nil {
		return Run{}, fmt.Errorf("submit tool outputs: %w", err)
	}
	return convertRun(run), nil
}

func (o *OpenAI) RunMessages(ctx context.Context, threadID, runID string) ([]ThreadMessage, error) {
	order := "desc"
	list, err := o.client.ListMessage(ctx, threadID, nil, &order, nil, nil, &runID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]ThreadMessage, 0, len(list.Messages))
	for _, msg := range list.Messages {
		messages = append(messages, ThreadMessage{
			ID:       msg.ID,
			Role:     msg.Role,
			Segments: convertSegments(msg.Content),
		})
	}
	return messages, nil
}

func (o *OpenAI) CreateAssistant(ctx context.Context, spec AssistantSpec) (string, error) {
	model := spec.Model
	if model == "" {
		model = o.model
	}

	tools := []openai.AssistantTool{
		{Type: openai.AssistantToolTypeCodeInterpreter},
		{Type: openai.AssistantToolTypeFileSearch},
	}
	for i := range spec.FunctionTools {
		tools = append(tools, openai.AssistantTool{
			Type:     openai.AssistantToolTypeFunction,
			Function: &spec.FunctionTools[i],
		})
	}

	assistant, err := o.client.CreateAssistant(ctx, openai.AssistantRequest{
		Name:         &spec.Name,
		Instructions: &spec.Instructions,
		Model:        model,
		Tools:        tools,
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	return assistant.ID, nil
}

func (o *OpenAI) AttachVectorStore(ctx context.Context, assistantID, vectorStoreID string) error {
	_, err := o.client.ModifyAssistant(ctx, assistantID, openai.AssistantRequest{
		Model: o.model,
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{
				VectorStoreIDs: []string{vectorStoreID},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("attach vector store: %w", err)
	}
	return nil
}

func (o *OpenAI) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := o.client.DeleteAssistant(ctx, assistantID); err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	return nil
}

func (o *OpenAI) CreateVectorStore(ctx context.Context, name string) (string, error) {
	store, err := o.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}
	return store.ID, nil
}

func (o *OpenAI) DeleteVectorStore(ctx context.Context, vectorStoreID string) error {
	if _, err := o.client.DeleteVectorStore(ctx, vectorStoreID); err != nil {
		return fmt.Errorf("delete vector store: %w", err)
	}
	return nil
}

func (o *OpenAI) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	file, err := o.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return file.ID, nil
}

func (o *OpenAI) DeleteFile(ctx context.Context, fileID string) error {
	if err := o.client.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (o *OpenAI) AttachFiles(ctx context.Context, vectorStoreID string, fileIDs []string) (FileBatch, error) {
	batch, err := o.client.CreateVectorStoreFileBatch(ctx, vectorStoreID, openai.VectorStoreFileBatchRequest{
		FileIDs: fileIDs,
	})
	if err != nil {
		return FileBatch{}, fmt.Errorf("attach files: %w", err)
	}
	return FileBatch{
		ID:         batch.ID,
		Status:     batch.Status,
		Total:      batch.FileCounts.Total,
		Completed:  batch.FileCounts.Completed,
		InProgress: batch.FileCounts.InProgress,
		Failed:     batch.FileCounts.Failed,
	}, nil
}

func (o *OpenAI) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	content, err := o.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("file content: %w", err)
	}
	return content, nil
}

func (o *OpenAI) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = o.model
	}
	return o.client.CreateChatCompletion(ctx, req)
}

func convertRun(run openai.Run) Run {
	converted := Run{
		ID:     run.ID,
		Status: run.Status,
	}
	if run.LastError != nil {
		converted.LastError = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return converted
}

func convertSegments(content []openai.MessageContent) []Segment {
	segments := make([]Segment, 0, len(content))
	for _, part := range content {
		switch {
		case part.Text != nil:
			segments = append(segments, Segment{
				Type:        SegmentText,
				Text:        part.Text.Value,
				Annotations: convertAnnotations(part.Text.Annotations),
			})
		case part.ImageFile != nil:
			segments = append(segments, Segment{
				Type:   SegmentImage,
				FileID: part.ImageFile.FileID,
			})
		}
	}
	return segments
}

// The API delivers annotations untyped; each carries the literal span
// under a "text" key.
func convertAnnotations(raw []any) []Annotation {
	var annotations []Annotation
	for _, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		span, ok := fields["text"].(string)
		if !ok || span == "" {
			continue
		}
		annotations = append(annotations, Annotation{Text: span})
	}
	return annotations
}
