package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"wachat/pkg/whatsapp/types"

	"wachat/internal/models"
)

// Client wraps outbound calls to the provider messaging API. Every call maps
// uniformly to success or failure; the raw response text is surfaced as the
// error detail. Retries are the caller's responsibility, never the client's.
type Client interface {
	SendText(ctx context.Context, account *models.Account, phone, body string) *types.SendResult
	SendMedia(ctx context.Context, account *models.Account, phone, mediaType, dataBase64, filename, caption string) *types.SendResult
}

type ClientConfig struct {
	SendTimeout   time.Duration
	UploadTimeout time.Duration
}

type client struct {
	httpClient    *http.Client
	sendTimeout   time.Duration
	uploadTimeout time.Duration
}

func NewClient(cfg ClientConfig) Client {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	return &client{
		httpClient:    &http.Client{},
		sendTimeout:   cfg.SendTimeout,
		uploadTimeout: cfg.UploadTimeout,
	}
}

func (c *client) SendText(ctx context.Context, account *models.Account, phone, body string) *types.SendResult {
	payload := &types.SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone,
		Type:             "text",
		Text:             &types.TextPayload{Body: body},
	}

	return c.postMessage(ctx, account, payload)
}

// SendMedia performs the two-step media protocol: upload the decoded payload
// to {base}/media, then send a message referencing the returned link. An
// upload failure fails the whole send; no message attempt is made. The
// caption rides on the media payload; audio messages cannot carry one.
func (c *client) SendMedia(ctx context.Context, account *models.Account, phone, mediaType, dataBase64, filename, caption string) *types.SendResult {
	link, uploadErr := c.uploadMedia(ctx, account, dataBase64, filename)
	if uploadErr != "" {
		return &types.SendResult{Success: false, Error: uploadErr}
	}

	payload := &types.SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone,
		Type:             mediaType,
	}

	media := &types.MediaPayload{Link: link, Caption: caption}
	switch mediaType {
	case "image":
		payload.Image = media
	case "audio":
		media.Caption = ""
		payload.Audio = media
	case "video":
		payload.Video = media
	default:
		payload.Type = "document"
		media.Filename = filename
		if media.Filename == "" {
			media.Filename = "document"
		}
		payload.Document = media
	}

	return c.postMessage(ctx, account, payload)
}

func (c *client) postMessage(ctx context.Context, account *models.Account, payload *types.SendMessageRequest) *types.SendResult {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return &types.SendResult{Success: false, Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, account.BaseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return &types.SendResult{Success: false, Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.SendResult{Success: false, Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.SendResult{Success: false, Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.SendResult{Success: false, Error: string(respBody)}
	}

	var result types.SendMessageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return &types.SendResult{Success: false, Error: fmt.Sprintf("failed to decode response: %v", err)}
	}

	if len(result.Messages) == 0 {
		return &types.SendResult{Success: false, Error: "provider response carried no message id"}
	}

	return &types.SendResult{Success: true, ProviderMessageID: result.Messages[0].ID}
}

// uploadMedia returns the provider media link, or an error detail string.
func (c *client) uploadMedia(ctx context.Context, account *models.Account, dataBase64, filename string) (string, string) {
	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return "", fmt.Sprintf("failed to decode media payload: %v", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if filename == "" {
		filename = "file"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Sprintf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Sprintf("failed to write media payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Sprintf("failed to close multipart writer: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, account.BaseURL+"/media", body)
	if err != nil {
		return "", fmt.Sprintf("failed to create upload request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Sprintf("upload request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Sprintf("failed to read upload response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", string(respBody)
	}

	var result types.MediaUploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Sprintf("failed to decode upload response: %v", err)
	}

	if result.Media.Link == "" {
		return "", "upload response carried no media link"
	}

	return result.Media.Link, ""
}
