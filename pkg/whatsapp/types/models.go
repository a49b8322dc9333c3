package types

// SendMessageRequest is the JSON payload for POST {base}/messages.
type SendMessageRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *TextPayload  `json:"text,omitempty"`
	Image            *MediaPayload `json:"image,omitempty"`
	Audio            *MediaPayload `json:"audio,omitempty"`
	Video            *MediaPayload `json:"video,omitempty"`
	Document         *MediaPayload `json:"document,omitempty"`
}

type TextPayload struct {
	Body string `json:"body"`
}

type MediaPayload struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// SendMessageResponse is the provider's reply to a message send.
type SendMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error string `json:"error,omitempty"`
}

// MediaUploadResponse is the provider's reply to a media upload.
type MediaUploadResponse struct {
	Media struct {
		Link string `json:"link"`
	} `json:"media"`
	Error string `json:"error,omitempty"`
}

// SendResult is the uniform outcome of one send attempt: either a provider
// message id, or the raw error detail from the failed call.
type SendResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}
