package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat/internal/models"
	"wachat/pkg/whatsapp/types"
)

func testAccount(baseURL string) *models.Account {
	return &models.Account{
		ID:          1,
		Name:        "primary",
		BaseURL:     baseURL,
		AccessToken: "test-token",
		Active:      true,
	}
}

func TestSendTextSuccess(t *testing.T) {
	var captured types.SendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.abc123"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendText(context.Background(), testAccount(server.URL), "15551234567", "hello")

	require.True(t, result.Success)
	assert.Equal(t, "wamid.abc123", result.ProviderMessageID)
	assert.Empty(t, result.Error)

	assert.Equal(t, "whatsapp", captured.MessagingProduct)
	assert.Equal(t, "individual", captured.RecipientType)
	assert.Equal(t, "15551234567", captured.To)
	assert.Equal(t, "text", captured.Type)
	require.NotNil(t, captured.Text)
	assert.Equal(t, "hello", captured.Text.Body)
}

func TestSendTextSurfacesRawErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid access token"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendText(context.Background(), testAccount(server.URL), "15551234567", "hello")

	assert.False(t, result.Success)
	assert.Empty(t, result.ProviderMessageID)
	assert.Contains(t, result.Error, "invalid access token")
}

func TestSendTextNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendText(context.Background(), testAccount(server.URL), "15551234567", "hello")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestSendTextEmptyMessageList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages": []}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendText(context.Background(), testAccount(server.URL), "15551234567", "hello")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no message id")
}

func TestSendTextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"messages": [{"id": "late"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{SendTimeout: 20 * time.Millisecond})
	result := client.SendText(context.Background(), testAccount(server.URL), "15551234567", "hello")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestSendMediaUploadsThenSends(t *testing.T) {
	payload := []byte("fake image bytes")
	var messageReq types.SendMessageRequest
	uploadCalled := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media":
			uploadCalled = true
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()

			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
			assert.Equal(t, "photo.jpg", header.Filename)

			_, _ = w.Write([]byte(`{"media": {"link": "https://cdn.example.com/photo.jpg"}}`))
		case "/messages":
			require.True(t, uploadCalled, "message must not be sent before upload")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&messageReq))
			_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.media1"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendMedia(context.Background(), testAccount(server.URL), "15551234567",
		"image", base64.StdEncoding.EncodeToString(payload), "photo.jpg", "look at this")

	require.True(t, result.Success)
	assert.Equal(t, "wamid.media1", result.ProviderMessageID)

	assert.Equal(t, "image", messageReq.Type)
	require.NotNil(t, messageReq.Image)
	assert.Equal(t, "https://cdn.example.com/photo.jpg", messageReq.Image.Link)
	assert.Equal(t, "look at this", messageReq.Image.Caption)
}

func TestSendMediaUploadFailureAbortsSend(t *testing.T) {
	messageCalled := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("storage unavailable"))
		case "/messages":
			messageCalled = true
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendMedia(context.Background(), testAccount(server.URL), "15551234567",
		"image", base64.StdEncoding.EncodeToString([]byte("data")), "photo.jpg", "")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "storage unavailable")
	assert.False(t, messageCalled, "send must be aborted when upload fails")
}

func TestSendMediaDocumentFallback(t *testing.T) {
	var messageReq types.SendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media":
			_, _ = w.Write([]byte(`{"media": {"link": "https://cdn.example.com/report.pdf"}}`))
		case "/messages":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&messageReq))
			_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.doc1"}]}`))
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	result := client.SendMedia(context.Background(), testAccount(server.URL), "15551234567",
		"application/pdf", base64.StdEncoding.EncodeToString([]byte("pdf")), "report.pdf", "")

	require.True(t, result.Success)
	assert.Equal(t, "document", messageReq.Type)
	require.NotNil(t, messageReq.Document)
	assert.Equal(t, "report.pdf", messageReq.Document.Filename)
}

func TestSendMediaRejectsBadBase64(t *testing.T) {
	client := NewClient(ClientConfig{})
	result := client.SendMedia(context.Background(), testAccount("http://unused"), "15551234567",
		"image", "not-base64!!!", "photo.jpg", "")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "decode media payload")
}
