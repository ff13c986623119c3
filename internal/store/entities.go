package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cast"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

type changeKind int

const (
	changeCreate changeKind = iota
	changeUpdate
	changeDelete
	changeMetadata
)

func (k changeKind) String() string {
	switch k {
	case changeCreate:
		return "create"
	case changeUpdate:
		return "update"
	case changeDelete:
		return "delete"
	}
	return "metadata"
}

// change is one pending write
type change struct {
	kind   changeKind
	ref    session.Ref
	fields map[string]any
	attr   string
	value  any
	md     session.Metadata
}

type entityRow struct {
	ID   string `db:"id"`
	Type string `db:"type"`
	Data string `db:"data"`
}

// maxLinkDepth bounds parent walks over corrupt hierarchies
const maxLinkDepth = 64

// Pending returns the number of uncommitted changes
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) snapshot() []change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]change(nil), s.pending...)
}

func (s *Store) queue(changes ...change) {
	s.mu.Lock()
	s.pending = append(s.pending, changes...)
	s.mu.Unlock()
}

// Query runs expr against committed state
func (s *Store) Query(ctx context.Context, expr string) ([]session.Entity, error) {
	q, err := ParseQuery(expr)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	var rows []entityRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", expr, err)
	}

	out := make([]session.Entity, 0, len(rows))
	for _, row := range rows {
		ent, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		if err := s.decorate(ctx, ent, nil); err != nil {
			return nil, err
		}
		out = append(out, *ent)
	}
	util.DebugLog("Query %q matched %d entities", expr, len(out))
	return out, nil
}

// Get fetches one entity of entityType (or one of its subtypes),
// including pending changes
func (s *Store) Get(ctx context.Context, entityType, id string) (*session.Entity, error) {
	types, err := concreteTypes(entityType)
	if err != nil {
		return nil, err
	}
	pending := s.snapshot()
	ent, err := s.load(ctx, id, pending)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(types, ent.Type) {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, session.ErrNotFound)
	}
	if err := s.decorate(ctx, ent, pending); err != nil {
		return nil, err
	}
	return ent, nil
}

// Create queues a new entity. Every attribute of the type is present on
// the result; unset ones are nil. An "id" key sets the identifier and a
// "metadata" key queues initial metadata.
func (s *Store) Create(ctx context.Context, entityType string, data *session.Data) (*session.Entity, error) {
	def, err := lookupType(entityType)
	if err != nil {
		return nil, err
	}
	pending := s.snapshot()

	fields := make(map[string]any, len(def.attrs))
	var id string
	var md session.Metadata
	var rangeErr error
	data.Range(func(key string, value any) bool {
		switch key {
		case "id":
			id = cast.ToString(value)
			return true
		case "metadata":
			md, rangeErr = toMetadata(value)
			return rangeErr == nil
		}
		kind, ok := def.attrs[key]
		if !ok {
			rangeErr = fmt.Errorf("%s has no attribute %q: %w", entityType, key, session.ErrUnknownAttribute)
			return false
		}
		v, err := s.coerce(ctx, kind, key, value, pending)
		if err != nil {
			rangeErr = err
			return false
		}
		fields[key] = v
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}

	for attr := range def.attrs {
		if _, ok := fields[attr]; !ok {
			fields[attr] = nil
		}
	}
	if entityType == session.TypeAssetType && fields["name"] == nil {
		fields["name"] = fields["short"]
	}

	if id == "" {
		id = uuid.NewString()
	} else if _, err := s.load(ctx, id, pending); err == nil {
		return nil, fmt.Errorf("entity %s already exists", id)
	}

	ref := session.Ref{Type: entityType, ID: id}
	changes := []change{{kind: changeCreate, ref: ref, fields: cloneFields(fields)}}
	if md != nil {
		changes = append(changes, change{kind: changeMetadata, ref: ref, md: md.Clone()})
	}
	s.queue(changes...)

	ent := &session.Entity{Type: entityType, ID: id, Fields: fields, Metadata: md.Clone()}
	if err := s.link(ctx, ent, s.snapshot()); err != nil {
		return nil, err
	}
	return ent, nil
}

// Update queues an attribute change
func (s *Store) Update(ctx context.Context, ref session.Ref, attr string, value any) error {
	pending := s.snapshot()
	ent, err := s.load(ctx, ref.ID, pending)
	if err != nil {
		return err
	}
	def, err := lookupType(ent.Type)
	if err != nil {
		return err
	}
	kind, ok := def.attrs[attr]
	if !ok {
		return fmt.Errorf("%s has no attribute %q: %w", ent.Type, attr, session.ErrUnknownAttribute)
	}
	v, err := s.coerce(ctx, kind, attr, value, pending)
	if err != nil {
		return err
	}
	s.queue(change{kind: changeUpdate, ref: ent.Ref(), attr: attr, value: v})
	return nil
}

// Delete queues removal of an entity with its metadata and placements
func (s *Store) Delete(ctx context.Context, ref session.Ref) error {
	ent, err := s.load(ctx, ref.ID, s.snapshot())
	if err != nil {
		return err
	}
	s.queue(change{kind: changeDelete, ref: ent.Ref()})
	return nil
}

// Metadata returns the metadata of ref, including pending changes
func (s *Store) Metadata(ctx context.Context, ref session.Ref) (session.Metadata, error) {
	pending := s.snapshot()
	if _, err := s.load(ctx, ref.ID, pending); err != nil {
		return nil, err
	}
	return s.metadata(ctx, ref.ID, pending)
}

// SetMetadata queues a full replacement of the metadata of ref
func (s *Store) SetMetadata(ctx context.Context, ref session.Ref, md session.Metadata) error {
	ent, err := s.load(ctx, ref.ID, s.snapshot())
	if err != nil {
		return err
	}
	s.queue(change{kind: changeMetadata, ref: ent.Ref(), md: md.Clone()})
	return nil
}

// Commit applies every pending change in one transaction. On failure
// nothing is applied and the changes stay pending.
func (s *Store) Commit(ctx context.Context) error {
	pending := s.snapshot()
	if len(pending) == 0 {
		return nil
	}

	now := time.Now().UTC()
	err := s.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, c := range pending {
			if err := applyChange(ctx, tx, c, now); err != nil {
				return fmt.Errorf("%s %s: %w", c.kind, c.ref, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	s.mu.Lock()
	s.pending = s.pending[len(pending):]
	s.mu.Unlock()

	util.DebugLog("Committed %d change(s)", len(pending))
	return nil
}

func applyChange(ctx context.Context, tx *sqlx.Tx, c change, now time.Time) error {
	switch c.kind {
	case changeCreate:
		data, err := json.Marshal(c.fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("entities")
		ib.Cols("id", "type", "data", "created_at", "updated_at")
		ib.Values(c.ref.ID, c.ref.Type, string(data), now, now)
		query, args := ib.Build()
		_, err = tx.ExecContext(ctx, query, args...)
		return err

	case changeUpdate:
		value, err := json.Marshal(c.value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", c.attr, err)
		}
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update("entities")
		ub.Set(
			fmt.Sprintf("data = json_set(data, %s, json(%s))", ub.Var(jsonPath(c.attr)), ub.Var(string(value))),
			ub.Assign("updated_at", now),
		)
		ub.Where(ub.Equal("id", c.ref.ID))
		query, args := ub.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return session.ErrNotFound
		}
		return nil

	case changeDelete:
		for _, target := range []struct{ table, column string }{
			{"metadata", "entity_id"},
			{"component_locations", "component_id"},
			{"entities", "id"},
		} {
			db := sqlbuilder.SQLite.NewDeleteBuilder()
			db.DeleteFrom(target.table)
			db.Where(db.Equal(target.column, c.ref.ID))
			query, args := db.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil

	case changeMetadata:
		db := sqlbuilder.SQLite.NewDeleteBuilder()
		db.DeleteFrom("metadata")
		db.Where(db.Equal("entity_id", c.ref.ID))
		query, args := db.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		if len(c.md) == 0 {
			return nil
		}
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("metadata")
		ib.Cols("entity_id", "key", "value")
		for _, key := range c.md.Keys() {
			ib.Values(c.ref.ID, key, c.md[key])
		}
		query, args = ib.Build()
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	return fmt.Errorf("unknown change kind %d", c.kind)
}

// load returns the entity with id as it looks after pending changes
func (s *Store) load(ctx context.Context, id string, pending []change) (*session.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("empty id: %w", session.ErrNotFound)
	}

	var ent *session.Entity

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "type", "data")
	sb.From("entities")
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var row entityRow
	err := s.db.GetContext(ctx, &row, query, args...)
	switch {
	case err == nil:
		ent, err = decodeRow(row)
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to load %s: %w", id, err)
	}

	for _, c := range pending {
		if c.ref.ID != id {
			continue
		}
		switch c.kind {
		case changeCreate:
			ent = &session.Entity{Type: c.ref.Type, ID: id, Fields: cloneFields(c.fields)}
		case changeUpdate:
			if ent != nil {
				ent.Fields[c.attr] = c.value
			}
		case changeDelete:
			ent = nil
		}
	}

	if ent == nil {
		return nil, fmt.Errorf("entity %s: %w", id, session.ErrNotFound)
	}
	return ent, nil
}

// decorate fills metadata and, for context types, the link chain
func (s *Store) decorate(ctx context.Context, ent *session.Entity, pending []change) error {
	md, err := s.metadata(ctx, ent.ID, pending)
	if err != nil {
		return err
	}
	ent.Metadata = md
	return s.link(ctx, ent, pending)
}

func (s *Store) link(ctx context.Context, ent *session.Entity, pending []change) error {
	def, ok := entityTypes[ent.Type]
	if !ok || !def.context {
		return nil
	}

	var links []session.Link
	cur := ent
	for depth := 0; cur != nil && depth < maxLinkDepth; depth++ {
		links = append(links, session.Link{Type: cur.Type, ID: cur.ID, Name: cur.GetString("name")})
		parent, ok := cur.GetRef("parent")
		if !ok {
			break
		}
		next, err := s.load(ctx, parent.ID, pending)
		if errors.Is(err, session.ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}
		cur = next
	}

	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	ent.Fields["link"] = links
	return nil
}

func (s *Store) metadata(ctx context.Context, id string, pending []change) (session.Metadata, error) {
	for i := len(pending) - 1; i >= 0; i-- {
		c := pending[i]
		if c.ref.ID != id {
			continue
		}
		switch c.kind {
		case changeMetadata:
			return c.md.Clone(), nil
		case changeCreate, changeDelete:
			return session.Metadata{}, nil
		}
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("key", "value")
	sb.From("metadata")
	sb.Where(sb.Equal("entity_id", id))
	query, args := sb.Build()

	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load metadata of %s: %w", id, err)
	}
	md := make(session.Metadata, len(rows))
	for _, r := range rows {
		md[r.Key] = r.Value
	}
	return md, nil
}

// coerce converts value to the stored form of an attribute kind
func (s *Store) coerce(ctx context.Context, kind attrKind, attr string, value any, pending []change) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch kind {
	case attrString:
		v, err := cast.ToStringE(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a string: %w", attr, err)
		}
		return v, nil
	case attrInt:
		v, err := cast.ToInt64E(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", attr, err)
		}
		return v, nil
	}

	var ref session.Ref
	switch v := value.(type) {
	case session.Ref:
		ref = v
	case *session.Ref:
		if v != nil {
			ref = *v
		}
	case session.Entity:
		ref = v.Ref()
	case *session.Entity:
		if v != nil {
			ref = v.Ref()
		}
	case string:
		ref = session.Ref{ID: v}
	case map[string]any:
		ref = session.Ref{Type: cast.ToString(v["__entity_type__"]), ID: cast.ToString(v["id"])}
	default:
		return nil, fmt.Errorf("%s must reference an entity, got %T", attr, value)
	}
	if ref.IsZero() {
		return nil, nil
	}
	if ref.Type == "" {
		target, err := s.load(ctx, ref.ID, pending)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", attr, err)
		}
		ref.Type = target.Type
	}
	return ref, nil
}

func decodeRow(row entityRow) (*session.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(row.Data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("corrupt data for entity %s: %w", row.ID, err)
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[k] = decodeValue(v)
	}
	if def, ok := entityTypes[row.Type]; ok {
		for attr := range def.attrs {
			if _, ok := fields[attr]; !ok {
				fields[attr] = nil
			}
		}
	}
	return &session.Entity{Type: row.Type, ID: row.ID, Fields: fields}, nil
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if id, ok := x["id"].(string); ok {
			t, _ := x["__entity_type__"].(string)
			return session.Ref{Type: t, ID: id}
		}
	}
	return v
}

func toMetadata(value any) (session.Metadata, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case session.Metadata:
		return v.Clone(), nil
	case map[string]string:
		return session.Metadata(v).Clone(), nil
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("metadata must be a string mapping: %w", err)
	}
	return session.Metadata(m), nil
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
