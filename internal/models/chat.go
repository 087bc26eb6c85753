package models

// ChatRequest is the body of /chat, /chat/raw and /summary.
type ChatRequest struct {
	Query   string  `json:"query"`
	History History `json:"history"`
}

// SourceDocument is a read-only projection of a retrieved vector store entry.
type SourceDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// CostInfo is the token usage and cost estimate for one request.
type CostInfo struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
	IsCached     bool    `json:"is_cached"`
}

// ChatResponse is the result of the retrieval-augmented chat pipeline.
type ChatResponse struct {
	Answer         string           `json:"answer"`
	Sources        []SourceDocument `json:"sources"`
	ProcessingTime float64          `json:"processing_time"`
	CostInfo       CostInfo         `json:"cost_info"`
}

// RawChatResponse is the result of chat without retrieval.
type RawChatResponse struct {
	Answer         string   `json:"answer"`
	ProcessingTime float64  `json:"processing_time"`
	CostInfo       CostInfo `json:"cost_info"`
}

// SummaryResponse is the result of the summary pipeline.
type SummaryResponse struct {
	Summary        string   `json:"summary"`
	ProcessingTime float64  `json:"processing_time"`
	CostInfo       CostInfo `json:"cost_info"`
}
