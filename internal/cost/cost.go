// Package cost estimates request cost from token counts and per-token rates.
package cost

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/models"
)

// Tokenizer counts tokens in text. Count must be deterministic.
type Tokenizer interface {
	Count(text string) int
}

// TiktokenTokenizer counts tokens with a BPE encoding bundled into the binary,
// so no network fetch happens at startup.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

var loaderOnce sync.Once

// NewTiktokenTokenizer returns a tokenizer for the named encoding, e.g. "cl100k_base".
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, apperr.Configuration(fmt.Sprintf("unknown tokenizer encoding %q: %v", encoding, err))
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Rates are per-token prices in the provider's currency.
type Rates struct {
	Input       float64
	CachedInput float64
	Output      float64
}

// Accountant turns input and output text into a CostInfo. It holds no mutable
// state and is safe for concurrent use.
type Accountant struct {
	tokenizer Tokenizer
	rates     Rates
}

// NewAccountant returns an accountant using tokenizer and rates.
func NewAccountant(tokenizer Tokenizer, rates Rates) *Accountant {
	return &Accountant{tokenizer: tokenizer, rates: rates}
}

// Rates returns the configured rates.
func (a *Accountant) Rates() Rates {
	return a.rates
}

// Tokenize returns the token count of text.
func (a *Accountant) Tokenize(text string) int {
	return a.tokenizer.Count(text)
}

// Cost prices input at the cached tier when isCached is set, output always at
// the output rate.
func (a *Accountant) Cost(input, output string, isCached bool) models.CostInfo {
	in := a.tokenizer.Count(input)
	out := a.tokenizer.Count(output)

	inputRate := a.rates.Input
	if isCached {
		inputRate = a.rates.CachedInput
	}
	inputCost := float64(in) * inputRate
	outputCost := float64(out) * a.rates.Output
	return models.CostInfo{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
		IsCached:     isCached,
	}
}
