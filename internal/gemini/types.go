package gemini

// GenerateRequest represents the request body for the generateContent API
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

// Content represents one ordered list of content parts
type Content struct {
	Parts []Part `json:"parts"`
}

// Part represents a single content fragment (text or inline data)
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64-encoded binary content
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GenerateResponse represents the response from the generateContent API
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	Error         *APIErrorBody  `json:"error,omitempty"`
}

// Candidate represents a single generated response candidate
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata reports token accounting for one exchange
type UsageMetadata struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	TotalTokenCount      int64 `json:"totalTokenCount"`
}

// APIErrorBody represents the error payload on non-success responses
type APIErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
