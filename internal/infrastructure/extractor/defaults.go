package extractor

import (
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/extractor/docx"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/extractor/pdf"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/extractor/plaintext"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/extractor/pptx"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePPTX     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
)

// NewDefaultRegistry wires the formats the pipeline ships with.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(pdf.NewExtractor(), MimePDF)
	r.Register(docx.NewExtractor(), MimeDOCX)
	r.Register(pptx.NewExtractor(), MimePPTX)
	r.Register(plaintext.NewExtractor(), MimeText, MimeMarkdown)
	return r
}
