package models

import "testing"

func TestNewIngestResponse(t *testing.T) {
	ok := IngestResult{File: "a.pdf", Status: StatusSuccess}
	bad := IngestResult{File: "b.pdf", Status: StatusError, Error: "corrupt"}
	tests := []struct {
		name    string
		results []IngestResult
		status  string
		count   int
	}{
		{"none", nil, StatusError, 0},
		{"all ok", []IngestResult{ok, ok}, StatusSuccess, 2},
		{"mixed", []IngestResult{ok, bad}, StatusPartial, 2},
		{"all failed", []IngestResult{bad, bad}, StatusError, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewIngestResponse(tt.results)
			if got.Status != tt.status || len(got.Results) != tt.count {
				t.Errorf("got %+v", got)
			}
			if got.Message == "" && got.Detail == "" {
				t.Error("response should carry a message or detail")
			}
		})
	}
}
