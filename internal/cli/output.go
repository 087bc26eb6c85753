// Package cli formats API responses for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/mxrag/internal/models"
	"github.com/hyperjump/mxrag/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteChat writes a chat answer and its sources.
func WriteChat(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "--- Sources ---")
		for i, src := range resp.Sources {
			fmt.Fprintf(w, "[%d] %s (chunk %s)\n", i+1, src.Source, src.ID)
			fmt.Fprintf(w, "    %s\n", utils.Truncate(src.Content, 160))
		}
		fmt.Fprintln(w)
	}
	writeCost(w, resp.ProcessingTime, resp.CostInfo)
	return nil
}

// WriteRawChat writes an answer produced without retrieval.
func WriteRawChat(w io.Writer, resp *models.RawChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	writeCost(w, resp.ProcessingTime, resp.CostInfo)
	return nil
}

// WriteSummary writes a conversation summary.
func WriteSummary(w io.Writer, resp *models.SummaryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Summary)
	writeCost(w, resp.ProcessingTime, resp.CostInfo)
	return nil
}

func writeCost(w io.Writer, seconds float64, c models.CostInfo) {
	cached := ""
	if c.IsCached {
		cached = ", cached input"
	}
	fmt.Fprintf(w, "%.2fs | tokens: %d in / %d out | cost: $%.6f%s\n",
		seconds, c.InputTokens, c.OutputTokens, c.TotalCost, cached)
}

// WriteIngest writes the outcome of an ingestion run.
func WriteIngest(w io.Writer, resp *models.IngestResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	for _, r := range resp.Results {
		switch {
		case r.Succeeded() && r.ChunksProcessed != nil:
			fmt.Fprintf(w, "ok     %s (%d chunks)\n", r.File, *r.ChunksProcessed)
		case r.Succeeded():
			fmt.Fprintf(w, "ok     %s\n", r.File)
		default:
			fmt.Fprintf(w, "error  %s: %s\n", r.File, r.Error)
		}
	}
	msg := resp.Message
	if msg == "" {
		msg = resp.Detail
	}
	fmt.Fprintf(w, "\n%s: %s\n", resp.Status, msg)
	return nil
}

// WriteStatus writes a /status body. Nested maps print as indented sections.
func WriteStatus(w io.Writer, status map[string]any, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, status)
	}
	writeFields(w, status, "")
	return nil
}

func writeFields(w io.Writer, m map[string]any, indent string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sections []string
	for _, k := range keys {
		if _, ok := m[k].(map[string]any); ok {
			sections = append(sections, k)
			continue
		}
		fmt.Fprintf(w, "%s%-22s %v\n", indent, k+":", formatValue(m[k]))
	}
	for _, k := range sections {
		fmt.Fprintf(w, "\n%s# %s\n", indent, k)
		writeFields(w, m[k].(map[string]any), indent+"  ")
	}
}

// formatValue prints JSON numbers without a trailing ".000000".
func formatValue(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// ReadHistory decodes a JSON array of [user, assistant] pairs.
func ReadHistory(r io.Reader) (models.History, error) {
	var h models.History
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return nil, fmt.Errorf("invalid history file: %w", err)
	}
	return h, nil
}
