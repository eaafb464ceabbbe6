package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/persona-gateway/internal/agents"
	"github.com/xaenox/persona-gateway/internal/chat"
	"github.com/xaenox/persona-gateway/internal/provider"
	"github.com/xaenox/persona-gateway/internal/provider/providertest"
	"github.com/xaenox/persona-gateway/internal/provision"
	"github.com/xaenox/persona-gateway/internal/storage"
	"github.com/xaenox/persona-gateway/internal/tools"
	"go.uber.org/zap"
)

func testServer(t *testing.T, fake *providertest.Fake) (*Server, storage.Storage) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()

	resolver := chat.NewResolver(store, "asst_general", logger)
	threads := chat.NewThreadStore(store, fake, logger)
	driver := chat.NewDriver(fake, tools.NewRegistry(logger), chat.DriverConfig{
		PollInterval: time.Millisecond,
		Timeout:      time.Second,
	}, logger)
	orchestrator := chat.NewOrchestrator(resolver, threads, driver, store, logger)

	provisioner := provision.NewService(fake, store, logger)
	router := agents.NewRouter(fake, logger, agents.NewCare(fake))

	return New(orchestrator, provisioner, router, store, logger), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func completingFake(reply string) *providertest.Fake {
	fake := &providertest.Fake{}
	fake.CreateRunFn = func(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
		return provider.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
	}
	fake.RunMessagesFn = func(ctx context.Context, threadID, runID string) ([]provider.ThreadMessage, error) {
		return []provider.ThreadMessage{{
			ID:   "msg_1",
			Role: openai.ChatMessageRoleAssistant,
			Segments: []provider.Segment{
				{Type: provider.SegmentText, Text: reply},
			},
		}}, nil
	}
	return fake
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, &providertest.Fake{})
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatMissingFields(t *testing.T) {
	s, _ := testServer(t, &providertest.Fake{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "required")
}

func TestChatHappyPath(t *testing.T) {
	fake := completingFake("Hello!\nHow can I help?")
	s, _ := testServer(t, fake)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{
		"userId":  "628xxxx",
		"message": "hi there",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response string `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello!<br />How can I help?", resp.Response)
}

func TestChatRunFailure(t *testing.T) {
	fake := &providertest.Fake{}
	fake.CreateRunFn = func(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
		return provider.Run{ID: "run_1", Status: openai.RunStatusFailed, LastError: "server_error: boom"}, nil
	}
	s, _ := testServer(t, fake)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{
		"userId":  "u1",
		"message": "hi",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "details")
	assert.Contains(t, rec.Body.String(), "server_error")
}

func TestCreateAssistant(t *testing.T) {
	s, store := testServer(t, &providertest.Fake{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/assistants", map[string]string{
		"userId":       "u1",
		"name":         "Fina",
		"instructions": "be helpful",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	persisted, err := store.GetAssistantByName(context.Background(), "u1", "fina")
	require.NoError(t, err)
	assert.True(t, persisted.IsDefault)
}

func TestCreateAssistantMissingFields(t *testing.T) {
	s, _ := testServer(t, &providertest.Fake{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/assistants", map[string]string{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFiles(t *testing.T) {
	fake := &providertest.Fake{}
	s, store := testServer(t, fake)

	provisioner := provision.NewService(fake, store, zap.NewNop())
	created, err := provisioner.Create(context.Background(), provision.CreateRequest{
		UserID: "u1", Name: "Fina", Instructions: "x",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", "guide.txt")
	require.NoError(t, err)
	part.Write([]byte("knowledge"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistants/"+created.AssistantID+"/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch_id")
}

func TestUploadFilesUnknownAssistant(t *testing.T) {
	s, _ := testServer(t, &providertest.Fake{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("files", "guide.txt")
	part.Write([]byte("knowledge"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistants/asst_ghost/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrchestrate(t *testing.T) {
	fake := &providertest.Fake{
		ChatCompletionFn: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			// The router call carries tools; the specialist call does not.
			if len(req.Tools) > 0 {
				return openai.ChatCompletionResponse{
					Choices: []openai.ChatCompletionChoice{{
						Message: openai.ChatCompletionMessage{
							ToolCalls: []openai.ToolCall{{
								ID:   "call_1",
								Type: openai.ToolTypeFunction,
								Function: openai.FunctionCall{
									Name:      "customer_service_and_interaction",
									Arguments: `{"task":"respond to the complaint"}`,
								},
							}},
						},
					}},
				}, nil
			}
			return openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{Content: "we are sorry, here is a voucher"},
				}},
			}, nil
		},
	}
	s, _ := testServer(t, fake)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/orchestrate", map[string]string{
		"message": "a customer is angry about shipping",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voucher")
}

func TestSaveCharacter(t *testing.T) {
	s, store := testServer(t, &providertest.Fake{})

	rec := doJSON(t, s, http.MethodPut, "/api/v1/users/u1/character", map[string]any{
		"agent_name": "Fina",
		"bio":        "a helpful witch",
		"traits":     []string{"curious"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, user.Character)
	assert.Equal(t, "Fina", user.Character.AgentName)
}

func TestSaveCharacterRequiresAgentName(t *testing.T) {
	s, _ := testServer(t, &providertest.Fake{})

	rec := doJSON(t, s, http.MethodPut, "/api/v1/users/u1/character", map[string]any{
		"bio": "anonymous",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "agent name"))
}

func TestHistoryEndpoint(t *testing.T) {
	fake := completingFake("reply text")
	s, _ := testServer(t, fake)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{
		"userId": "u1", "message": "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/users/u1/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reply text")
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestHistoryPagination(t *testing.T) {
	fake := completingFake("reply text")
	s, _ := testServer(t, fake)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{
		"userId": "u1", "message": "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The turn persisted two messages; limit=1 keeps only the newest.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/users/u1/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "reply text", resp.Messages[0].Content)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/users/u1/messages?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Content)

	// Garbage pagination values fall back to the defaults.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/users/u1/messages?limit=bogus&offset=-3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 2)
}
