package models

// Ingest result statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// IngestResult is the per-file outcome of an ingestion run.
type IngestResult struct {
	File            string `json:"file"`
	Status          string `json:"status"`
	ChunksProcessed *int   `json:"chunks_processed,omitempty"`
	ChunksSaved     bool   `json:"chunks_saved,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Succeeded reports whether the file was ingested.
func (r IngestResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// IngestResponse is the body of POST /ingest.
type IngestResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Detail  string         `json:"detail,omitempty"`
	Results []IngestResult `json:"results,omitempty"`
}

// NewIngestResponse summarises per-file results. An empty run and a run where
// every file failed are both errors; a mix of outcomes is partial.
func NewIngestResponse(results []IngestResult) IngestResponse {
	if len(results) == 0 {
		return IngestResponse{Status: StatusError, Detail: "No PDF files found in the data directory"}
	}
	failed := 0
	for _, r := range results {
		if !r.Succeeded() {
			failed++
		}
	}
	switch {
	case failed == len(results):
		return IngestResponse{Status: StatusError, Detail: "Failed to process all PDF files", Results: results}
	case failed > 0:
		return IngestResponse{Status: StatusPartial, Message: "Some files failed to process", Results: results}
	default:
		return IngestResponse{Status: StatusSuccess, Message: "All files processed successfully", Results: results}
	}
}

// IngestedDocument is one row of the ingestion ledger.
type IngestedDocument struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	FilePath   string `json:"file_path"`
	Chunks     int    `json:"chunks"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	IngestedAt string `json:"ingested_at"`
}
