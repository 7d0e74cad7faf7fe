package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/config"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

type pipelineFake struct {
	mu         sync.Mutex
	processed  []string
	advanced   []string
	marked     [][2]string
	processErr map[string]error
	markErr    map[string]error
}

func (f *pipelineFake) Advance(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced = append(f.advanced, id)
	return nil
}

func (f *pipelineFake) Process(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return f.processErr[id]
}

func (f *pipelineFake) MarkForReprocessing(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, [2]string{id, reason})
	return f.markErr[id]
}

type intakeFake struct {
	admitted []string
	admitErr map[string]error
}

func (f *intakeFake) Admit(_ context.Context, sourceID string) (*domain.ExpertDocument, error) {
	if err := f.admitErr[sourceID]; err != nil {
		return nil, err
	}
	f.admitted = append(f.admitted, sourceID)
	return &domain.ExpertDocument{
		ID:             "doc-" + sourceID,
		SourceID:       sourceID,
		PipelineStatus: domain.StatusUnprocessed,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

type docStoreFake struct {
	docs    []domain.ExpertDocument
	listErr error
}

func (f *docStoreFake) Create(_ context.Context, doc *domain.ExpertDocument) error {
	f.docs = append(f.docs, *doc)
	return nil
}

func (f *docStoreFake) GetByID(_ context.Context, id string) (*domain.ExpertDocument, error) {
	for i := range f.docs {
		if f.docs[i].ID == id {
			doc := f.docs[i]
			return &doc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch document", errors.New(id))
}

func (f *docStoreFake) GetBySourceID(_ context.Context, sourceID string) (*domain.ExpertDocument, error) {
	for i := range f.docs {
		if f.docs[i].SourceID == sourceID {
			doc := f.docs[i]
			return &doc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch document", errors.New(sourceID))
}

func (f *docStoreFake) Update(_ context.Context, _ *domain.ExpertDocument) error { return nil }

func (f *docStoreFake) UpdateStatus(_ context.Context, _ string, _ domain.PipelineStatus, _ domain.ClassificationMetadata) error {
	return nil
}

func (f *docStoreFake) MarkOrphaned(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *docStoreFake) ListByStatus(_ context.Context, status domain.PipelineStatus, _ int) ([]domain.ExpertDocument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ExpertDocument
	for i := range f.docs {
		if f.docs[i].PipelineStatus == status && !f.docs[i].Orphaned() {
			out = append(out, f.docs[i])
		}
	}
	return out, nil
}

func (f *docStoreFake) ListOrphaned(_ context.Context, _ int) ([]domain.ExpertDocument, error) {
	var out []domain.ExpertDocument
	for i := range f.docs {
		if f.docs[i].Orphaned() {
			out = append(out, f.docs[i])
		}
	}
	return out, nil
}

func (f *docStoreFake) CountByStatus(_ context.Context) (map[domain.PipelineStatus]int, error) {
	counts := map[domain.PipelineStatus]int{}
	for i := range f.docs {
		if !f.docs[i].Orphaned() {
			counts[f.docs[i].PipelineStatus]++
		}
	}
	return counts, nil
}

func (f *docStoreFake) CountOrphaned(_ context.Context) (int, error) {
	n := 0
	for i := range f.docs {
		if f.docs[i].Orphaned() {
			n++
		}
	}
	return n, nil
}

type sourceStoreFake struct {
	records map[string]*domain.SourceRecord
}

func (f *sourceStoreFake) GetByID(_ context.Context, id string) (*domain.SourceRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch source record", errors.New(id))
	}
	cp := *rec
	return &cp, nil
}

func (f *sourceStoreFake) Upsert(_ context.Context, rec *domain.SourceRecord) error {
	if f.records == nil {
		f.records = map[string]*domain.SourceRecord{}
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *sourceStoreFake) UpdateDocumentType(_ context.Context, _, _ string) error { return nil }

func (f *sourceStoreFake) SetNeedsReprocessing(_ context.Context, _ string, _ bool) error { return nil }

type typeStoreFake struct {
	types []domain.DocumentType
}

func (f *typeStoreFake) GetByID(_ context.Context, id string) (*domain.DocumentType, error) {
	for i := range f.types {
		if f.types[i].ID == id {
			t := f.types[i]
			return &t, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch document type", errors.New(id))
}

func (f *typeStoreFake) GetByName(_ context.Context, name string) (*domain.DocumentType, error) {
	for i := range f.types {
		if strings.EqualFold(f.types[i].Name, name) {
			t := f.types[i]
			return &t, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch document type", errors.New(name))
}

func (f *typeStoreFake) List(_ context.Context) ([]domain.DocumentType, error) {
	return append([]domain.DocumentType(nil), f.types...), nil
}

func (f *typeStoreFake) Upsert(_ context.Context, t *domain.DocumentType) error {
	for i := range f.types {
		if f.types[i].ID == t.ID {
			f.types[i] = *t
			return nil
		}
	}
	f.types = append(f.types, *t)
	return nil
}

type watchEvent struct {
	rec     domain.SourceRecord
	removed bool
}

type scannerFake struct {
	records     []domain.SourceRecord
	scanErr     error
	watchEvents []watchEvent
}

func (f *scannerFake) Scan(_ context.Context) ([]domain.SourceRecord, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]domain.SourceRecord(nil), f.records...), nil
}

func (f *scannerFake) Watch(ctx context.Context, handler func(context.Context, *domain.SourceRecord, bool) error) error {
	for i := range f.watchEvents {
		ev := f.watchEvents[i]
		if err := handler(ctx, &ev.rec, ev.removed); err != nil {
			return err
		}
	}
	return nil
}

// testServices is everything a command test can reach through the
// package globals.
type testServices struct {
	pipeline *pipelineFake
	intake   *intakeFake
	docs     *docStoreFake
	sources  *sourceStoreFake
	types    *typeStoreFake
	scanner  *scannerFake
}

// setupTestServices swaps the wired services for fakes and resets all
// command flags. The returned cleanup restores the previous state.
func setupTestServices() (*testServices, func()) {
	prevApp := app
	prevConfig := appConfig
	prevPipeline := pipeline
	prevIntake := intake
	prevDocs := documentStore
	prevSources := sourceStore
	prevTypes := typeStore
	prevScanner := contentDir

	svc := &testServices{
		pipeline: &pipelineFake{processErr: map[string]error{}, markErr: map[string]error{}},
		intake:   &intakeFake{admitErr: map[string]error{}},
		docs:     &docStoreFake{},
		sources:  &sourceStoreFake{records: map[string]*domain.SourceRecord{}},
		types:    &typeStoreFake{},
		scanner:  &scannerFake{},
	}

	app = nil
	appConfig = config.Config{
		BatchSize:        100,
		BatchConcurrency: 1,
		RetryAttempts:    1,
		BackoffBaseMS:    1,
		BackoffMaxMS:     2,
		ErrorListCap:     25,
	}
	pipeline = svc.pipeline
	intake = svc.intake
	documentStore = svc.docs
	sourceStore = svc.sources
	typeStore = svc.types
	contentDir = svc.scanner

	resetFlags := func() {
		processStatus = ""
		processLimit = 0
		processDryRun = false
		processStopOnError = false
		processConcurrency = 0
		reprocessLimit = 0
		reprocessDryRun = false
		reprocessStopOnError = false
		markReason = ""
		orphansLimit = 0
		typesImportFile = ""
		discoverWatch = false
		configFile = ""
	}
	resetFlags()

	return svc, func() {
		resetFlags()
		app = prevApp
		appConfig = prevConfig
		pipeline = prevPipeline
		intake = prevIntake
		documentStore = prevDocs
		sourceStore = prevSources
		typeStore = prevTypes
		contentDir = prevScanner
	}
}

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}
