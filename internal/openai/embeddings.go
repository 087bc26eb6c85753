package openai

import (
	"context"
	"fmt"

	"github.com/hyperjump/mxrag/internal/apperr"
)

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embeddings returns one vector per input, in input order.
func (c *Client) Embeddings(ctx context.Context, model string, dimensions int, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	req := embeddingRequest{
		Model:          model,
		Input:          inputs,
		Dimensions:     dimensions,
		EncodingFormat: "float",
	}
	var resp embeddingResponse
	if err := c.postJSON(ctx, "embeddings", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, apperr.Provider(apperr.ReasonBadRequest, 0,
			fmt.Sprintf("embedding count mismatch: sent %d inputs, got %d vectors", len(inputs), len(resp.Data)), nil)
	}
	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, apperr.Provider(apperr.ReasonBadRequest, 0, fmt.Sprintf("invalid embedding index %d", d.Index), nil)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
