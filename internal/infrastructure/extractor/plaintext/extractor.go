package plaintext

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// Extractor handles text/plain and text/markdown payloads.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("payload is not valid utf-8")
	}
	return strings.TrimSpace(string(data)), nil
}
