package openai

import (
	"strings"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

func buildSystemPrompt(candidates []domain.DocumentType) string {
	parts := []string{
		"You are a document classifier.",
		"Reply with exactly one JSON object and nothing else: no markdown, no code fences, no commentary.",
		`The object must contain the keys "documentType" (string), "confidence" (number from 0 to 1) and "reasoning" (string).`,
	}
	if len(candidates) > 0 {
		names := make([]string, 0, len(candidates))
		for _, t := range candidates {
			names = append(names, t.Name)
		}
		parts = append(parts, "Pick documentType from this list when one fits: "+strings.Join(names, "; ")+".")
	}
	parts = append(parts, "If no listed type fits, use the closest short label you can justify in reasoning.")
	return strings.Join(parts, " ")
}

func buildUserPrompt(content string) string {
	return "Classify the following document:\n\n" + content
}
