package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// Format extracts plain text from one document format.
type Format interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry routes extraction by mime type. Selection is by declared mime
// only; the bytes are never sniffed.
type Registry struct {
	formats map[string]Format
}

func NewRegistry() *Registry {
	return &Registry{formats: make(map[string]Format)}
}

// Register binds a format to one or more mime types.
func (r *Registry) Register(format Format, mimeTypes ...string) {
	for _, mt := range mimeTypes {
		r.formats[normalizeMime(mt)] = format
	}
}

func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.formats[normalizeMime(mimeType)]
	return ok
}

// Extract runs the format matching mimeType and fingerprints the result.
// Identical bytes always produce an identical hash, which the pipeline relies
// on to detect unchanged content across reprocessing runs.
func (r *Registry) Extract(ctx context.Context, data []byte, mimeType string) (domain.ExtractionResult, error) {
	if len(data) == 0 {
		return domain.ExtractionResult{}, domain.NewExtractionError(mimeType, "empty payload", nil)
	}
	format, ok := r.formats[normalizeMime(mimeType)]
	if !ok {
		return domain.ExtractionResult{}, domain.NewExtractionError(mimeType, "unsupported mime type", nil)
	}

	text, err := format.Extract(ctx, data)
	if err != nil {
		var ee *domain.ExtractionError
		if errors.As(err, &ee) {
			return domain.ExtractionResult{}, err
		}
		return domain.ExtractionResult{}, domain.NewExtractionError(mimeType, "extraction failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ExtractionResult{}, domain.NewExtractionError(mimeType, "empty extraction result", nil)
	}

	sum := sha256.Sum256([]byte(text))
	return domain.ExtractionResult{
		RawContent:  text,
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

func normalizeMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
