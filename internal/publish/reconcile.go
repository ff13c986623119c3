package publish

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// ReconcileRequest describes one find-or-create step
type ReconcileRequest struct {
	Index    int // deliverable index, for the audit trail
	Type     string
	Identity *session.Data
	Extra    *session.Data
	Metadata session.Metadata
}

// ReconcileResult is the entity a step resolved to
type ReconcileResult struct {
	Entity  *session.Entity
	Created bool
	Query   string
}

// Reconciler finds an entity by identity or creates it, then merges
// metadata into it
type Reconciler struct {
	Session session.EntityStore
	Events  *report.EventLogger

	// Strict fails when an identity query matches several entities.
	// Otherwise the first match wins.
	Strict bool
}

// NewReconciler returns a strict reconciler
func NewReconciler(s session.EntityStore, events *report.EventLogger) *Reconciler {
	return &Reconciler{Session: s, Events: events, Strict: true}
}

// Reconcile runs one step. The query covers Identity merged with Extra
// (Extra wins on collisions); metadata is never part of it and is merged
// into the entity after it exists.
func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	data := req.Identity.Clone().Merge(req.Extra)
	metadata, err := popMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Type, err)
	}
	metadata = metadata.Merge(req.Metadata)

	query, err := BuildQuery(req.Type, data)
	if err != nil {
		return nil, err
	}
	entity, err := r.findOne(ctx, req.Type, query)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Entity: entity, Query: query}
	if entity == nil {
		entity, err = r.Session.Create(ctx, req.Type, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", req.Type, err)
		}
		util.InfoLog("Created new %s with data: %s, metadata: %s.", req.Type, data, metadata)
		result.Entity = entity
		result.Created = true
	} else {
		util.DebugLog("Found existing %s %s", req.Type, entity.ID)
	}
	r.Events.LogReconcile(req.Index, req.Type, entity.ID, result.Created)

	merged, err := mergeMetadata(ctx, r.Session, entity.Ref(), metadata)
	if err != nil {
		return nil, err
	}
	entity.Metadata = merged
	if len(metadata) > 0 {
		r.Events.LogMetadata(req.Index, req.Type, entity.ID, merged)
	}
	return result, nil
}

// findOne runs an identity query and applies the ambiguity rule
func (r *Reconciler) findOne(ctx context.Context, entityType, query string) (*session.Entity, error) {
	return findOne(ctx, r.Session, r.Strict, entityType, query)
}

func findOne(ctx context.Context, s session.EntityStore, strict bool, entityType, query string) (*session.Entity, error) {
	found, err := s.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", entityType, err)
	}
	switch {
	case len(found) == 0:
		return nil, nil
	case len(found) > 1 && strict:
		return nil, &session.AmbiguousEntityError{Type: entityType, Query: query, Count: len(found)}
	case len(found) > 1:
		util.WarnLog("%d %s entities match %q, using the first (%s)", len(found), entityType, query, found[0].ID)
	}
	entity := found[0]
	return &entity, nil
}

// mergeMetadata applies the additive-overwrite rule: keys in update win,
// other existing keys survive. Nothing is written when the merge changes
// nothing.
func mergeMetadata(ctx context.Context, s session.EntityStore, ref session.Ref, update session.Metadata) (session.Metadata, error) {
	current, err := s.Metadata(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", ref, err)
	}
	merged := current.Merge(update)
	if merged.Equal(current) {
		return merged, nil
	}
	if err := s.SetMetadata(ctx, ref, merged); err != nil {
		return nil, fmt.Errorf("failed to write metadata of %s: %w", ref, err)
	}
	util.InfoLog("Merged metadata %s into %s", update, ref)
	return merged, nil
}

// popMetadata removes a "metadata" key from data and returns it as a
// string mapping
func popMetadata(data *session.Data) (session.Metadata, error) {
	value, ok := data.Delete("metadata")
	if !ok || value == nil {
		return session.Metadata{}, nil
	}
	return toMetadata(value)
}

func toMetadata(value any) (session.Metadata, error) {
	switch v := value.(type) {
	case nil:
		return session.Metadata{}, nil
	case session.Metadata:
		return v.Clone(), nil
	case map[string]string:
		return session.Metadata(v).Clone(), nil
	case *session.Data:
		md := make(session.Metadata, v.Len())
		var err error
		v.Range(func(k string, val any) bool {
			md[k], err = cast.ToStringE(val)
			return err == nil
		})
		if err != nil {
			return nil, fmt.Errorf("metadata values must be scalars: %w", err)
		}
		return md, nil
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("metadata must be a string mapping: %w", err)
	}
	return session.Metadata(m), nil
}
