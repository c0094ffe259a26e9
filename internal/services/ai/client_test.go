package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/nyp-fyp/chatbot-go/internal/services/knowledge"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubKnowledge returns a fixed document set for every query
type stubKnowledge struct {
	documents []knowledge.Document
}

func (s *stubKnowledge) LoadKnowledgeBase(ctx context.Context, dir string) error { return nil }

func (s *stubKnowledge) SearchDocuments(ctx context.Context, query string) ([]knowledge.Document, error) {
	return s.documents, nil
}

func (s *stubKnowledge) GetAllDocuments() []knowledge.Document { return s.documents }

func (s *stubKnowledge) RefreshKnowledgeBase(ctx context.Context) error { return nil }

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionReply(content string) string {
	return fmt.Sprintf(`{"choices": [{"message": {"content": %q}}]}`, content)
}

func testClient(t *testing.T, handler http.Handler) (Service, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.ModelsConfig{
		Default:           "test-model",
		RequestsPerSecond: 1000,
		Endpoints: []config.ModelEndpoint{{
			Name:    "primary",
			BaseURL: server.URL,
			APIKey:  "test-key",
			Models:  []config.ModelInfo{{ID: "test-model", Name: "Test Model", MaxTokens: 256}},
		}},
	}
	return NewClient(cfg, logger), server
}

func TestGetResponse(t *testing.T) {
	var captured capturedRequest
	var authHeader string

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionReply("the answer"))
	}))

	answer, err := client.GetResponse(context.Background(), []models.Message{
		{Role: "user", Content: "a question"},
	}, "test-model")
	require.NoError(t, err)

	assert.Equal(t, "the answer", answer)
	assert.Equal(t, "Bearer test-key", authHeader)
	assert.Equal(t, "test-model", captured.Model)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "a question", captured.Messages[0].Content)
}

func TestGetResponseClientErrorNotRetried(t *testing.T) {
	var calls int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": {"message": "bad request"}}`, http.StatusBadRequest)
	}))

	_, err := client.GetResponse(context.Background(), []models.Message{
		{Role: "user", Content: "q"},
	}, "test-model")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetResponseUnknownModel(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an unknown model")
	}))

	_, err := client.GetResponse(context.Background(), []models.Message{
		{Role: "user", Content: "q"},
	}, "no-such-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGetResponseWithKnowledgeInjectsContext(t *testing.T) {
	var captured capturedRequest

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionReply("grounded answer"))
	}))

	kb := &stubKnowledge{documents: []knowledge.Document{
		{Title: "Admissions FAQ", Content: "Applications open in January."},
	}}

	answer, err := client.GetResponseWithKnowledge(context.Background(), []models.Message{
		{Role: "user", Content: "When do applications open?"},
	}, "test-model", kb)
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", answer)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "Admissions FAQ")
	assert.Contains(t, captured.Messages[0].Content, "Applications open in January.")
	assert.Equal(t, "When do applications open?", captured.Messages[1].Content)
}

func TestGetResponseWithKnowledgeNilService(t *testing.T) {
	var captured capturedRequest

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionReply("plain answer"))
	}))

	answer, err := client.GetResponseWithKnowledge(context.Background(), []models.Message{
		{Role: "user", Content: "q"},
	}, "test-model", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", answer)
	require.Len(t, captured.Messages, 1)
}

func TestGenerateChatName(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionReply(`"Japan Trip Plans"`))
	}))

	name := client.GenerateChatName(context.Background(), "What should I see in Japan?")
	assert.Equal(t, "Japan Trip Plans", name)
}

func TestGenerateChatNameFallsBack(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))

	name := client.GenerateChatName(context.Background(), "What should I see in Japan?")
	assert.Equal(t, "What should I see in Japan?", name)
}
