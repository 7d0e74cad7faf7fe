package cli

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

func TestRootRegistersAllCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"process", "reprocess", "mark", "orphans", "types", "status", "discover"} {
		if !names[want] {
			t.Fatalf("command %q not registered, have %v", want, names)
		}
	}
}

func TestProcessCmdRunsActionableDocuments(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	svc.docs.docs = []domain.ExpertDocument{
		{ID: "doc-1", PipelineStatus: domain.StatusUnprocessed},
		{ID: "doc-2", PipelineStatus: domain.StatusNeedsClassification},
		{ID: "doc-3", PipelineStatus: domain.StatusProcessed},
	}

	out, err := executeCmd(t, "process")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := append([]string(nil), svc.pipeline.processed...)
	sort.Strings(got)
	if len(got) != 2 || got[0] != "doc-1" || got[1] != "doc-2" {
		t.Fatalf("expected doc-1 and doc-2 processed, got %v", got)
	}
	if !strings.Contains(out, "Succeeded: 2") {
		t.Fatalf("expected success summary, got %q", out)
	}
}

func TestProcessCmdAcceptsExplicitIDs(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCmd(t, "process", "doc-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.pipeline.processed) != 1 || svc.pipeline.processed[0] != "doc-9" {
		t.Fatalf("expected doc-9 processed, got %v", svc.pipeline.processed)
	}
	if !strings.Contains(out, "Total: 1") {
		t.Fatalf("expected summary for one document, got %q", out)
	}
}

func TestProcessCmdFiltersByStatus(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	svc.docs.docs = []domain.ExpertDocument{
		{ID: "doc-1", PipelineStatus: domain.StatusUnprocessed},
		{ID: "doc-2", PipelineStatus: domain.StatusNeedsReprocessing},
	}

	if _, err := executeCmd(t, "process", "--status", "needsReprocessing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.pipeline.processed) != 1 || svc.pipeline.processed[0] != "doc-2" {
		t.Fatalf("expected only doc-2 processed, got %v", svc.pipeline.processed)
	}
}

func TestProcessCmdRejectsUnknownStatus(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCmd(t, "process", "--status", "bogus")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestProcessCmdDryRunTouchesNothing(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	svc.docs.docs = []domain.ExpertDocument{
		{ID: "doc-1", PipelineStatus: domain.StatusUnprocessed},
	}

	out, err := executeCmd(t, "process", "--dry-run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.pipeline.processed) != 0 {
		t.Fatalf("dry run must not process, got %v", svc.pipeline.processed)
	}
	if !strings.Contains(out, "Skipped: 1") {
		t.Fatalf("expected dry run summary, got %q", out)
	}
}

func TestProcessCmdReportsFailures(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	svc.docs.docs = []domain.ExpertDocument{
		{ID: "doc-1", PipelineStatus: domain.StatusUnprocessed},
		{ID: "doc-2", PipelineStatus: domain.StatusUnprocessed},
	}
	svc.pipeline.processErr["doc-2"] = errors.New("extraction blew up")

	out, err := executeCmd(t, "process")
	if err != nil {
		t.Fatalf("run should finish despite failures, got %v", err)
	}
	if !strings.Contains(out, "Succeeded: 1") || !strings.Contains(out, "Failed: 1") {
		t.Fatalf("expected mixed summary, got %q", out)
	}
	if !strings.Contains(out, "extraction blew up") {
		t.Fatalf("expected failure detail, got %q", out)
	}
}

func TestProcessCmdMarksMalformedExhaustionForReprocessing(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()

	svc.docs.docs = []domain.ExpertDocument{
		{ID: "doc-1", PipelineStatus: domain.StatusNeedsClassification},
	}
	svc.pipeline.processErr["doc-1"] = domain.NewClassifierError(
		domain.ClassifierMalformedResponse, "unparseable response: no JSON object found", nil)

	out, err := executeCmd(t, "process")
	if err != nil {
		t.Fatalf("run should finish despite failures, got %v", err)
	}
	if !strings.Contains(out, "Failed: 1") {
		t.Fatalf("expected the document to be reported failed, got %q", out)
	}
	if len(svc.pipeline.marked) != 1 || svc.pipeline.marked[0][0] != "doc-1" {
		t.Fatalf("expected doc-1 marked for reprocessing, got %v", svc.pipeline.marked)
	}
	if !strings.Contains(svc.pipeline.marked[0][1], "unparseable response") {
		t.Fatalf("reason %q does not carry the parse failure", svc.pipeline.marked[0][1])
	}
}

func TestProcessCmdNoWork(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCmd(t, "process")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No documents to process.") {
		t.Fatalf("expected idle message, got %q", out)
	}
}
