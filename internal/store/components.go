package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/nebukadhezer/pyblish-ftrack/internal/sequence"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/transfer"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// placementPlan is one placement AddComponent is about to record
type placementPlan struct {
	component *session.Entity
	container bool
	srcPath   string
	resource  string
}

// Members lists the committed member components of a container
func (s *Store) Members(ctx context.Context, component session.Ref) ([]session.Entity, error) {
	return s.Query(ctx, fmt.Sprintf("Component where container.id is %q", component.ID))
}

// AddComponent places a component in loc, reading from src. With
// recursive set, members are placed too. Disk locations receive a copy
// of the data; origin and unmanaged locations record the source path.
// Pending changes are committed first.
func (s *Store) AddComponent(ctx context.Context, loc *session.Location, component session.Ref, src session.Source, recursive bool) error {
	if err := s.Commit(ctx); err != nil {
		return err
	}
	loc, err := s.resolveLocation(ctx, loc)
	if err != nil {
		return err
	}

	comp, err := s.Get(ctx, session.TypeComponent, component.ID)
	if err != nil {
		return err
	}
	members, err := s.Members(ctx, comp.Ref())
	if err != nil {
		return err
	}
	isContainer := len(members) > 0

	var plans []placementPlan
	if recursive {
		for i := range members {
			plan, err := s.planPlacement(ctx, loc, &members[i], src, comp, false)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}
	}
	plan, err := s.planPlacement(ctx, loc, comp, src, nil, isContainer)
	if err != nil {
		return err
	}
	plans = append(plans, plan)

	if loc.Kind != session.KindOrigin {
		for _, p := range plans {
			existing, err := s.placement(ctx, loc.ID, p.component.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%s in %s: %w", p.component, loc.Name, session.ErrComponentInLocation)
			}
		}
	}

	if loc.Kind == session.KindDisk {
		var jobs []transfer.Job
		for _, p := range plans {
			if p.container || p.srcPath == "" {
				continue
			}
			jobs = append(jobs, transfer.Job{Src: p.srcPath, Dest: FilesystemPath(loc, p.resource)})
		}
		result, err := s.transfer.Run(ctx, jobs)
		if err != nil {
			return fmt.Errorf("failed to transfer %s to %s: %w", comp, loc.Name, err)
		}
		util.DebugLog("Transferred %d file(s) for %s to %s (%s)", result.Succeeded, comp, loc.Name, util.FormatBytes(result.BytesWritten))
	}

	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, p := range plans {
			ib := sqlbuilder.SQLite.NewInsertBuilder()
			ib.InsertInto("component_locations")
			ib.Cols("component_id", "location_id", "resource_identifier")
			ib.Values(p.component.ID, loc.ID, p.resource)
			if loc.Kind == session.KindOrigin {
				ib.SQL("ON CONFLICT(component_id, location_id) DO UPDATE SET resource_identifier = excluded.resource_identifier")
			}
			query, args := ib.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to record %s in %s: %w", p.component, loc.Name, err)
			}
		}
		return nil
	})
}

// planPlacement works out where comp's data comes from and its resource
// identifier in loc. container is set when comp is a member being placed
// through its container.
func (s *Store) planPlacement(ctx context.Context, loc *session.Location, comp *session.Entity, src session.Source, container *session.Entity, isContainer bool) (placementPlan, error) {
	plan := placementPlan{component: comp, container: isContainer}

	switch {
	case src.Location != nil:
		srcLoc, err := s.resolveLocation(ctx, src.Location)
		if err != nil {
			return plan, err
		}
		p, err := s.placement(ctx, srcLoc.ID, comp.ID)
		if err != nil {
			return plan, err
		}
		switch {
		case p != nil:
			plan.srcPath = FilesystemPath(srcLoc, p.ResourceIdentifier)
		case !isContainer:
			return plan, fmt.Errorf("%s in %s: %w", comp, srcLoc.Name, session.ErrComponentNotInLocation)
		}
	case src.Path != "" && container != nil:
		coll, err := sequence.Parse(src.Path)
		if err != nil {
			return plan, fmt.Errorf("member %s of %s: %w", comp.GetString("name"), container, err)
		}
		index, err := strconv.Atoi(comp.GetString("name"))
		if err != nil {
			return plan, fmt.Errorf("member name %q is not an index", comp.GetString("name"))
		}
		plan.srcPath = coll.Member(index)
	case src.Path != "":
		plan.srcPath = src.Path
	default:
		return plan, errors.New("no source path or location given")
	}

	if loc.Kind != session.KindDisk && plan.srcPath != "" {
		abs, err := filepath.Abs(plan.srcPath)
		if err != nil {
			return plan, err
		}
		plan.resource = abs
		return plan, nil
	}

	resource, err := s.resourcePath(ctx, comp, plan.srcPath, isContainer)
	if err != nil {
		return plan, err
	}
	plan.resource = resource
	return plan, nil
}

// resourcePath lays component data out below a disk root:
//
//	<context>/<asset>/v003/<name><ext>
//	<context>/<asset>/v003/<name>/<name>.%04d<ext>       (container)
//	<context>/<asset>/v003/<name>/<name>.0001<ext>       (member)
//	thumbnails/<id><ext>                                 (no version)
func (s *Store) resourcePath(ctx context.Context, comp *session.Entity, srcPath string, isContainer bool) (string, error) {
	name := sanitizeName(comp.GetString("name"))
	ext := comp.GetString("file_type")
	if ext == "" {
		ext = filepath.Ext(srcPath)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if cref, ok := comp.GetRef("container"); ok {
		container, err := s.Get(ctx, session.TypeComponent, cref.ID)
		if err != nil {
			return "", err
		}
		dir, err := s.versionDir(ctx, container)
		if err != nil {
			return "", err
		}
		cname := sanitizeName(container.GetString("name"))
		return path.Join(dir, cname, cname+"."+name+ext), nil
	}

	dir, err := s.versionDir(ctx, comp)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return path.Join("thumbnails", comp.ID+ext), nil
	}
	if isContainer {
		padding, err := s.containerPadding(ctx, comp)
		if err != nil {
			return "", err
		}
		token := "%d"
		if padding > 0 {
			token = fmt.Sprintf("%%0%dd", padding)
		}
		return path.Join(dir, name, name+"."+token+ext), nil
	}
	return path.Join(dir, name+ext), nil
}

// containerPadding reads the index padding off the member names, which
// hold the index tokens. The padding attribute is used when no member
// token is zero-padded.
func (s *Store) containerPadding(ctx context.Context, comp *session.Entity) (int, error) {
	members, err := s.Members(ctx, comp.Ref())
	if err != nil {
		return 0, err
	}
	padding := 0
	for _, m := range members {
		if p := sequence.DetectPadding(m.GetString("name")); p > padding {
			padding = p
		}
	}
	if padding == 0 {
		padding = int(comp.GetInt("padding"))
	}
	return padding, nil
}

// versionDir returns <context>/<asset>/vNNN for a versioned component,
// or "" when the component belongs to no version.
func (s *Store) versionDir(ctx context.Context, comp *session.Entity) (string, error) {
	vref, ok := comp.GetRef("version")
	if !ok {
		return "", nil
	}
	version, err := s.Get(ctx, session.TypeAssetVersion, vref.ID)
	if err != nil {
		return "", err
	}
	aref, ok := version.GetRef("asset")
	if !ok {
		return "", fmt.Errorf("%s has no asset", version)
	}
	asset, err := s.Get(ctx, session.TypeAsset, aref.ID)
	if err != nil {
		return "", err
	}

	var parts []string
	if pref, ok := asset.GetRef("parent"); ok {
		parent, err := s.Get(ctx, "Context", pref.ID)
		if err != nil {
			return "", err
		}
		for _, l := range parent.Link() {
			parts = append(parts, sanitizeName(l.Name))
		}
	}
	parts = append(parts, sanitizeName(asset.GetString("name")), fmt.Sprintf("v%03d", version.GetInt("version")))
	return path.Join(parts...), nil
}

// RemoveComponent drops a component's placement in loc and deletes the
// data of disk locations. With recursive set, members go too.
func (s *Store) RemoveComponent(ctx context.Context, loc *session.Location, component session.Ref, recursive bool) error {
	if err := s.Commit(ctx); err != nil {
		return err
	}
	loc, err := s.resolveLocation(ctx, loc)
	if err != nil {
		return err
	}

	comp, err := s.Get(ctx, session.TypeComponent, component.ID)
	if err != nil {
		return err
	}
	members, err := s.Members(ctx, comp.Ref())
	if err != nil {
		return err
	}
	isContainer := len(members) > 0

	self, err := s.placement(ctx, loc.ID, comp.ID)
	if err != nil {
		return err
	}
	if self == nil {
		return fmt.Errorf("%s in %s: %w", comp, loc.Name, session.ErrComponentNotInLocation)
	}

	type removal struct {
		placement *session.Placement
		data      bool
	}
	removals := []removal{{placement: self, data: !isContainer}}
	if recursive {
		for _, m := range members {
			p, err := s.placement(ctx, loc.ID, m.ID)
			if err != nil {
				return err
			}
			if p != nil {
				removals = append(removals, removal{placement: p, data: true})
			}
		}
	}

	if loc.Kind == session.KindDisk {
		for _, r := range removals {
			if !r.data {
				continue
			}
			if err := s.transfer.Remove(ctx, FilesystemPath(loc, r.placement.ResourceIdentifier)); err != nil {
				return err
			}
		}
	}

	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, r := range removals {
			db := sqlbuilder.SQLite.NewDeleteBuilder()
			db.DeleteFrom("component_locations")
			db.Where(db.Equal("component_id", r.placement.ComponentID), db.Equal("location_id", loc.ID))
			query, args := db.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to remove %s from %s: %w", r.placement.ComponentID, loc.Name, err)
			}
		}
		return nil
	})
}

// CreateComponent creates a component on version from path, a single
// file or a sequence pattern, registers it in origin and adds it to loc.
// Sequences become a SequenceComponent with one FileComponent member per
// file, named by index.
func (s *Store) CreateComponent(ctx context.Context, version session.Ref, filePath string, data *session.Data, loc *session.Location) (*session.Entity, error) {
	fields := data.Clone()
	if !fields.Has("name") {
		fields.Set("name", "main")
	}
	if !fields.Has("version") && !version.IsZero() {
		fields.Set("version", version)
	}

	origin, err := s.LocationByName(ctx, session.OriginLocation)
	if err != nil {
		return nil, err
	}

	var comp *session.Entity
	coll, err := sequence.Parse(filePath)
	switch {
	case errors.Is(err, sequence.ErrNotSequence):
		if !util.Exists(s.fs, filePath) {
			return nil, fmt.Errorf("%s: %w", filePath, util.ErrNotFound)
		}
		if !fields.Has("file_type") {
			fields.Set("file_type", filepath.Ext(filePath))
		}
		if !fields.Has("size") {
			fields.Set("size", util.SizeOrZero(s.fs, filePath))
		}
		comp, err = s.Create(ctx, session.TypeFileComponent, fields)
		if err != nil {
			return nil, err
		}
		if err := s.AddComponent(ctx, origin, comp.Ref(), session.FromPath(filePath), false); err != nil {
			return nil, err
		}

	case err != nil:
		return nil, err

	default:
		coll, err = sequence.Resolve(s.fs, filePath)
		if err != nil {
			return nil, err
		}
		comp, err = s.createSequence(ctx, coll, fields, origin)
		if err != nil {
			return nil, err
		}
	}

	if loc != nil && loc.Kind != session.KindOrigin {
		if err := s.AddComponent(ctx, loc, comp.Ref(), session.FromLocation(origin), true); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, comp.Type, comp.ID)
}

func (s *Store) createSequence(ctx context.Context, coll *sequence.Collection, fields *session.Data, origin *session.Location) (*session.Entity, error) {
	var total int64
	for _, p := range coll.Paths() {
		if !util.Exists(s.fs, p) {
			return nil, fmt.Errorf("member %s: %w", p, util.ErrNotFound)
		}
		total += util.SizeOrZero(s.fs, p)
	}
	if !fields.Has("file_type") {
		fields.Set("file_type", coll.Ext())
	}
	if !fields.Has("padding") {
		fields.Set("padding", coll.Padding)
	}
	if !fields.Has("size") {
		fields.Set("size", total)
	}

	comp, err := s.Create(ctx, session.TypeSequenceComponent, fields)
	if err != nil {
		return nil, err
	}
	members := make([]*session.Entity, 0, coll.Len())
	for _, index := range coll.Indexes {
		member, err := s.Create(ctx, session.TypeFileComponent, session.NewData(
			"name", coll.IndexToken(index),
			"container", comp.Ref(),
			"file_type", coll.Ext(),
			"size", util.SizeOrZero(s.fs, coll.Member(index)),
		))
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	for i, member := range members {
		src := session.FromPath(coll.Member(coll.Indexes[i]))
		if err := s.AddComponent(ctx, origin, member.Ref(), src, false); err != nil {
			return nil, err
		}
	}
	if err := s.AddComponent(ctx, origin, comp.Ref(), session.FromPath(coll.String()), false); err != nil {
		return nil, err
	}
	return comp, nil
}

// CreateThumbnail creates a thumbnail component from filePath, places it
// in the preferred location and queues owner's thumbnail update
func (s *Store) CreateThumbnail(ctx context.Context, owner session.Ref, filePath string) (*session.Entity, error) {
	ent, err := s.Get(ctx, owner.Type, owner.ID)
	if err != nil {
		return nil, err
	}
	if !ent.Has("thumbnail") {
		return nil, fmt.Errorf("%s has no attribute \"thumbnail\": %w", ent.Type, session.ErrUnknownAttribute)
	}
	if !util.Exists(s.fs, filePath) {
		return nil, fmt.Errorf("%s: %w", filePath, util.ErrNotFound)
	}

	comp, err := s.Create(ctx, session.TypeFileComponent, session.NewData(
		"name", "thumbnail",
		"file_type", filepath.Ext(filePath),
		"size", util.SizeOrZero(s.fs, filePath),
	))
	if err != nil {
		return nil, err
	}

	origin, err := s.LocationByName(ctx, session.OriginLocation)
	if err != nil {
		return nil, err
	}
	if err := s.AddComponent(ctx, origin, comp.Ref(), session.FromPath(filePath), false); err != nil {
		return nil, err
	}
	target, err := s.PickLocation(ctx)
	if err != nil {
		return nil, err
	}
	if target.Kind != session.KindOrigin {
		if err := s.AddComponent(ctx, target, comp.Ref(), session.FromLocation(origin), false); err != nil {
			return nil, err
		}
	}

	if err := s.Update(ctx, ent.Ref(), "thumbnail", comp.Ref()); err != nil {
		return nil, err
	}
	return s.Get(ctx, comp.Type, comp.ID)
}

// resolveLocation reloads loc from the database by name
func (s *Store) resolveLocation(ctx context.Context, loc *session.Location) (*session.Location, error) {
	if loc == nil {
		return nil, errors.New("no location given")
	}
	return s.LocationByName(ctx, loc.Name)
}

func sanitizeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
