package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/ports"
)

// Resolver maps a classifier's free-text label to a canonical taxonomy id and
// applies the fixed per-source-category override rules.
type Resolver struct {
	types ports.DocumentTypeRepository

	// overrides force a document type keyed by the source record's category
	// id. Business policy: the rule always wins over the classifier.
	overrides map[string]string
	log       *slog.Logger
}

func NewResolver(types ports.DocumentTypeRepository, overrides map[string]string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{types: types, overrides: overrides, log: log}
}

// Resolution is the outcome of resolving one classifier verdict.
type Resolution struct {
	// TypeID is the canonical document type, nil when no match exists and
	// the taxonomy carries no fallback entry.
	TypeID *string
	// ClassifierChosen is false when an override rule supplied TypeID.
	ClassifierChosen bool
	// UnmatchedLabel records a label that hit the fallback path.
	UnmatchedLabel string
	// OverriddenTypeID and OverrideRule record a rule win for review.
	OverriddenTypeID string
	OverrideRule     string
}

// Candidates lists the taxonomy for prompt assembly.
func (r *Resolver) Candidates(ctx context.Context) ([]domain.DocumentType, error) {
	types, err := r.types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	return types, nil
}

// Resolve looks the label up case-insensitively, falling back to the generic
// unknown-type entry, then lets any override rule for the source category win.
// Resolution never fails on an unmatched label; only storage errors surface.
func (r *Resolver) Resolve(ctx context.Context, label string, src *domain.SourceRecord) (Resolution, error) {
	res, err := r.lookup(ctx, label)
	if err != nil {
		return Resolution{}, err
	}

	if src != nil && src.DocumentTypeID != nil {
		if forced, ok := r.overrides[*src.DocumentTypeID]; ok {
			if res.TypeID == nil || *res.TypeID != forced {
				var overridden string
				if res.TypeID != nil {
					overridden = *res.TypeID
				}
				r.log.Info("resolver.override_applied",
					"source_category", *src.DocumentTypeID,
					"classifier_type", overridden,
					"forced_type", forced,
				)
				return Resolution{
					TypeID:           &forced,
					ClassifierChosen: false,
					UnmatchedLabel:   res.UnmatchedLabel,
					OverriddenTypeID: overridden,
					OverrideRule:     fmt.Sprintf("source category %s forces type %s", *src.DocumentTypeID, forced),
				}, nil
			}
		}
	}

	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, label string) (Resolution, error) {
	name := normalizeLabel(label)
	if name != "" {
		t, err := r.types.GetByName(ctx, name)
		if err == nil {
			return Resolution{TypeID: &t.ID, ClassifierChosen: true}, nil
		}
		if !domain.IsKind(err, domain.ErrNotFound) {
			return Resolution{}, fmt.Errorf("resolve type %q: %w", name, err)
		}
	}

	fallback, err := r.types.GetByName(ctx, domain.FallbackTypeName)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			r.log.Warn("resolver.no_fallback_type", "label", label)
			return Resolution{TypeID: nil, UnmatchedLabel: label}, nil
		}
		return Resolution{}, fmt.Errorf("resolve fallback type: %w", err)
	}

	r.log.Info("resolver.fallback_applied", "label", label, "fallback_type", fallback.ID)
	return Resolution{TypeID: &fallback.ID, ClassifierChosen: true, UnmatchedLabel: label}, nil
}

// normalizeLabel collapses the whitespace quirks models produce. Case folding
// happens in the repository lookup.
func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}
