package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

type sourceRepoFake struct {
	records     map[string]*domain.SourceRecord
	getErr      error
	typeUpdates map[string]string
	flags       map[string]bool
	flagErr     error
}

func newSourceRepoFake(recs ...*domain.SourceRecord) *sourceRepoFake {
	f := &sourceRepoFake{
		records:     map[string]*domain.SourceRecord{},
		typeUpdates: map[string]string{},
		flags:       map[string]bool{},
	}
	for _, rec := range recs {
		copyRec := *rec
		f.records[rec.ID] = &copyRec
	}
	return f
}

func (f *sourceRepoFake) GetByID(_ context.Context, id string) (*domain.SourceRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get source record", errors.New(id))
	}
	copyRec := *rec
	return &copyRec, nil
}

func (f *sourceRepoFake) Upsert(_ context.Context, rec *domain.SourceRecord) error {
	copyRec := *rec
	f.records[rec.ID] = &copyRec
	return nil
}

func (f *sourceRepoFake) UpdateDocumentType(_ context.Context, id, documentTypeID string) error {
	f.typeUpdates[id] = documentTypeID
	return nil
}

func (f *sourceRepoFake) SetNeedsReprocessing(_ context.Context, id string, flag bool) error {
	if f.flagErr != nil {
		return f.flagErr
	}
	f.flags[id] = flag
	return nil
}

type statusCall struct {
	status domain.PipelineStatus
	meta   domain.ClassificationMetadata
}

type documentRepoFake struct {
	docs        map[string]*domain.ExpertDocument
	getErr      error
	createErr   error
	updateErr   error
	statusErr   error
	statusCalls []statusCall
	orphanCalls []string
	created     []*domain.ExpertDocument
}

func newDocumentRepoFake(docs ...*domain.ExpertDocument) *documentRepoFake {
	f := &documentRepoFake{docs: map[string]*domain.ExpertDocument{}}
	for _, doc := range docs {
		copyDoc := *doc
		f.docs[doc.ID] = &copyDoc
	}
	return f
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.ExpertDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.created = append(f.created, &copyDoc)
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.ExpertDocument, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get expert document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *documentRepoFake) GetBySourceID(_ context.Context, sourceID string) (*domain.ExpertDocument, error) {
	for _, doc := range f.docs {
		if doc.SourceID == sourceID {
			copyDoc := *doc
			return &copyDoc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get expert document by source", errors.New(sourceID))
}

func (f *documentRepoFake) Update(_ context.Context, doc *domain.ExpertDocument) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, id string, status domain.PipelineStatus, meta domain.ClassificationMetadata) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, meta: meta})
	if f.statusErr != nil {
		return f.statusErr
	}
	if doc, ok := f.docs[id]; ok {
		doc.PipelineStatus = status
		doc.ClassificationMetadata = meta
	}
	return nil
}

func (f *documentRepoFake) MarkOrphaned(_ context.Context, id string, at time.Time) error {
	f.orphanCalls = append(f.orphanCalls, id)
	if doc, ok := f.docs[id]; ok {
		ts := at
		doc.OrphanedAt = &ts
	}
	return nil
}

func (f *documentRepoFake) ListByStatus(_ context.Context, status domain.PipelineStatus, limit int) ([]domain.ExpertDocument, error) {
	var out []domain.ExpertDocument
	for _, doc := range f.docs {
		if doc.PipelineStatus != status || doc.Orphaned() {
			continue
		}
		out = append(out, *doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *documentRepoFake) ListOrphaned(_ context.Context, limit int) ([]domain.ExpertDocument, error) {
	var out []domain.ExpertDocument
	for _, doc := range f.docs {
		if !doc.Orphaned() {
			continue
		}
		out = append(out, *doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *documentRepoFake) CountByStatus(_ context.Context) (map[domain.PipelineStatus]int, error) {
	counts := map[domain.PipelineStatus]int{}
	for _, doc := range f.docs {
		if doc.Orphaned() {
			continue
		}
		counts[doc.PipelineStatus]++
	}
	return counts, nil
}

func (f *documentRepoFake) CountOrphaned(_ context.Context) (int, error) {
	n := 0
	for _, doc := range f.docs {
		if doc.Orphaned() {
			n++
		}
	}
	return n, nil
}

type typeRepoFake struct {
	types   []domain.DocumentType
	listErr error
	getErr  error
}

func (f *typeRepoFake) GetByID(_ context.Context, id string) (*domain.DocumentType, error) {
	for _, t := range f.types {
		if t.ID == id {
			copyType := t
			return &copyType, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get document type", errors.New(id))
}

func (f *typeRepoFake) GetByName(_ context.Context, name string) (*domain.DocumentType, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, t := range f.types {
		if strings.EqualFold(t.Name, name) {
			copyType := t
			return &copyType, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get document type by name", errors.New(name))
}

func (f *typeRepoFake) List(_ context.Context) ([]domain.DocumentType, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.DocumentType(nil), f.types...), nil
}

func (f *typeRepoFake) Upsert(_ context.Context, t *domain.DocumentType) error {
	for i := range f.types {
		if f.types[i].ID == t.ID {
			f.types[i] = *t
			return nil
		}
	}
	f.types = append(f.types, *t)
	return nil
}

type contentFake struct {
	data  []byte
	err   error
	calls int
}

func (f *contentFake) Fetch(context.Context, *domain.SourceRecord) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type extractorFake struct {
	result domain.ExtractionResult
	err    error
	calls  int
}

func (f *extractorFake) Extract(context.Context, []byte, string) (domain.ExtractionResult, error) {
	f.calls++
	if f.err != nil {
		return domain.ExtractionResult{}, f.err
	}
	return f.result, nil
}

func (f *extractorFake) Supports(string) bool { return true }

type classifierFake struct {
	verdict        domain.Classification
	err            error
	calls          int
	lastContent    string
	lastCandidates []domain.DocumentType
}

func (f *classifierFake) Classify(_ context.Context, content string, candidates []domain.DocumentType) (domain.Classification, error) {
	f.calls++
	f.lastContent = content
	f.lastCandidates = candidates
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.verdict, nil
}

type gateFake struct {
	err   error
	calls int
}

func (f *gateFake) Acquire(context.Context) error {
	f.calls++
	return f.err
}

type queueFake struct {
	published []string
	pubErr    error
}

func (f *queueFake) PublishSourceDiscovered(_ context.Context, sourceID string) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, sourceID)
	return nil
}

func (f *queueFake) SubscribeSourceDiscovered(context.Context, func(context.Context, string) error) error {
	return nil
}

// pipelineFixture assembles a happy-path pipeline whose parts tests
// swap out or break as needed.
type pipelineFixture struct {
	sources    *sourceRepoFake
	documents  *documentRepoFake
	content    *contentFake
	extractor  *extractorFake
	classifier *classifierFake
	gate       *gateFake
	types      *typeRepoFake
	overrides  map[string]string
	cfg        PipelineConfig
}

func newPipelineFixture() *pipelineFixture {
	return &pipelineFixture{
		sources: newSourceRepoFake(&domain.SourceRecord{
			ID:       "src-1",
			Name:     "paper.pdf",
			MimeType: "application/pdf",
		}),
		documents: newDocumentRepoFake(&domain.ExpertDocument{
			ID:             "doc-1",
			SourceID:       "src-1",
			PipelineStatus: domain.StatusUnprocessed,
		}),
		content:   &contentFake{data: []byte("%PDF-1.7")},
		extractor: &extractorFake{result: domain.ExtractionResult{RawContent: "extracted text", ContentHash: "hash-1"}},
		classifier: &classifierFake{verdict: domain.Classification{
			DocumentType: "research article",
			Confidence:   0.92,
			Reasoning:    "cites methods and findings",
		}},
		gate: &gateFake{},
		types: &typeRepoFake{types: []domain.DocumentType{
			{ID: "type-ra", Name: "research article", Category: "academic"},
			{ID: "type-unknown", Name: domain.FallbackTypeName, Category: "general"},
		}},
		cfg: PipelineConfig{ModelName: "gpt-4o-mini"},
	}
}

func (fx *pipelineFixture) build() *PipelineUseCase {
	resolver := NewResolver(fx.types, fx.overrides, discardLogger())
	return NewPipelineUseCase(
		fx.sources,
		fx.documents,
		fx.content,
		fx.extractor,
		fx.classifier,
		fx.gate,
		resolver,
		fx.cfg,
		discardLogger(),
	)
}

func (fx *pipelineFixture) doc(id string) *domain.ExpertDocument {
	return fx.documents.docs[id]
}
