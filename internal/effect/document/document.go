// Package document merges fields into a store document from a rule.
package document

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/store"
)

// MergeEffect handles "document.merge" effects.
//
//	collection: <name>
//	id: <document id | ${path}>
//	fields: {field: value|${path}}
//
// Merging the same fields twice leaves the document unchanged, so the
// effect is naturally idempotent.
type MergeEffect struct {
	store store.Store
}

func NewMerge(s store.Store) *MergeEffect { return &MergeEffect{store: s} }

func (m *MergeEffect) Type() string { return "document.merge" }

func (m *MergeEffect) Validate(params map[string]any) error {
	for _, key := range []string{"collection", "id"} {
		if _, err := effect.String(params, key); err != nil {
			return fmt.Errorf("document.merge: %w", err)
		}
	}
	fields, err := effect.Map(params, "fields")
	if err != nil {
		return fmt.Errorf("document.merge: %w", err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("document.merge: param \"fields\" must not be empty")
	}
	return nil
}

func (m *MergeEffect) Execute(ctx context.Context, call effect.Call) (*effect.Result, error) {
	collection, err := effect.String(call.Params, "collection")
	if err != nil {
		return nil, err
	}
	id, err := effect.String(call.Params, "id")
	if err != nil {
		return nil, err
	}
	fields, err := effect.Map(call.Params, "fields")
	if err != nil {
		return nil, err
	}
	if err := m.store.Merge(ctx, collection, id, fields); err != nil {
		return nil, err
	}
	return &effect.Result{
		EffectID: call.EffectID,
		Type:     m.Type(),
		Success:  true,
		Message:  fmt.Sprintf("merged %d fields into %s/%s", len(fields), collection, id),
	}, nil
}
