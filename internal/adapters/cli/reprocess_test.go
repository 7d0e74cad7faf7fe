package cli

import (
	"strings"
	"testing"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

func TestReprocessCmdSelectsMarkedDocuments(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	svc.docs.docs = []domain.ExpertDocument{
		{ID: "doc-1", PipelineStatus: domain.StatusNeedsReprocessing},
		{ID: "doc-2", PipelineStatus: domain.StatusProcessed},
		{ID: "doc-3", PipelineStatus: domain.StatusUnprocessed},
	}

	out, err := executeCmd(t, "reprocess")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.pipeline.processed) != 1 || svc.pipeline.processed[0] != "doc-1" {
		t.Fatalf("expected only doc-1 reprocessed, got %v", svc.pipeline.processed)
	}
	if !strings.Contains(out, "Succeeded: 1") {
		t.Fatalf("expected summary, got %q", out)
	}
}

func TestReprocessCmdNoWork(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCmd(t, "reprocess")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No documents are marked for reprocessing.") {
		t.Fatalf("expected idle message, got %q", out)
	}
}
