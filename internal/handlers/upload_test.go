package handlers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doUpload(t *testing.T, router *mux.Router, path, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadFile(t *testing.T) {
	router := testRouter(t)
	token := registerAndLogin(t, router, "alice")

	rec := doUpload(t, router, "/api/upload", token, "notes.txt", []byte("lecture notes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Upload models.UploadRecord `json:"upload"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "alice", resp.Upload.Owner)
	assert.Equal(t, "notes.txt", resp.Upload.Filename)
	assert.Equal(t, "file", resp.Upload.Kind)
	assert.Equal(t, int64(len("lecture notes")), resp.Upload.Size)
	assert.FileExists(t, resp.Upload.StoredPath)
}

func TestUploadRequiresAuth(t *testing.T) {
	router := testRouter(t)

	rec := doUpload(t, router, "/api/upload", "bogus", "notes.txt", []byte("x"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAudioUploadRateLimit(t *testing.T) {
	router := testRouter(t)
	token := registerAndLogin(t, router, "alice")

	budget := config.DefaultBudgets()["audio"].MaxRequests
	for i := 0; i < budget; i++ {
		rec := doUpload(t, router, "/api/upload/audio", token, fmt.Sprintf("clip%d.wav", i), []byte("audio"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := doUpload(t, router, "/api/upload/audio", token, "one-too-many.wav", []byte("audio"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestUploadCountsTowardsStats(t *testing.T) {
	router := testRouter(t)
	token := registerAndLogin(t, router, "alice")

	rec := doUpload(t, router, "/api/upload", token, "a.txt", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats models.UserStats `json:"stats"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 1, resp.Stats.TotalUploads)
}
