package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/sequence"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// Mode is the path a component commit took
type Mode string

const (
	ModeNoop      Mode = "noop"
	ModeCreate    Mode = "create"
	ModeOverwrite Mode = "overwrite"
)

// CommitRequest describes the component to commit for a version
type CommitRequest struct {
	Index          int
	Version        *session.Entity
	Identity       *session.Data // name, version and any component data
	Metadata       session.Metadata
	Path           string // single file or sequence pattern
	Location       *session.Location
	Overwrite      bool
	SetAsThumbnail bool
}

// CommitResult is the component a commit resolved to
type CommitResult struct {
	Component *session.Entity
	Mode      Mode
	Members   int
}

// Engine decides between creating, overwriting and leaving a component
// alone, and carries out the choice
type Engine struct {
	Session session.Session
	Fs      afero.Fs
	Events  *report.EventLogger
	Strict  bool
}

// NewEngine returns a strict engine reading member files from fs
func NewEngine(s session.Session, fs afero.Fs, events *report.EventLogger) *Engine {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Engine{Session: s, Fs: fs, Events: events, Strict: true}
}

// Commit resolves the component named by req.Identity on req.Version.
// An existing component without Overwrite is returned untouched and
// nothing is written.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	data := req.Identity.Clone()
	metadata, err := popMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("component: %w", err)
	}
	metadata = metadata.Merge(req.Metadata)

	query, err := BuildQuery(session.TypeComponent, data)
	if err != nil {
		return nil, err
	}
	existing, err := findOne(ctx, e.Session, e.Strict, session.TypeComponent, query)
	if err != nil {
		return nil, err
	}

	if existing != nil && !req.Overwrite {
		util.InfoLog("Found existing component, and no request to overwrite. Nothing has been changed.")
		e.Events.LogCommit(req.Index, string(ModeNoop), existing.ID, req.Path, "", 0)
		return &CommitResult{Component: existing, Mode: ModeNoop}, nil
	}

	if req.Path == "" {
		return nil, errors.New("component path is required")
	}
	location := req.Location
	if location == nil {
		location, err = e.Session.PickLocation(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to pick location: %w", err)
		}
	}

	result := &CommitResult{}
	if existing == nil {
		component, err := e.Session.CreateComponent(ctx, req.Version.Ref(), req.Path, data, location)
		if err != nil {
			return nil, fmt.Errorf("failed to create component from %s: %w", req.Path, err)
		}
		util.InfoLog("Created new Component with path: %s, data: %s, metadata: %s, location: %s",
			req.Path, data, metadata, location.Name)
		members, err := e.Session.Members(ctx, component.Ref())
		if err != nil {
			return nil, err
		}
		result.Component, result.Mode, result.Members = component, ModeCreate, len(members)
	} else {
		component, members, err := e.overwrite(ctx, existing, req.Path, location)
		if err != nil {
			return nil, fmt.Errorf("failed to overwrite %s: %w", existing, err)
		}
		util.InfoLog("Overwriting Component with path: %s, data: %s, location: %s", req.Path, data, location.Name)
		result.Component, result.Mode, result.Members = component, ModeOverwrite, members
	}

	component := result.Component
	merged, err := mergeMetadata(ctx, e.Session, component.Ref(), metadata)
	if err != nil {
		return nil, err
	}
	component.Metadata = merged

	if req.SetAsThumbnail {
		if err := e.Session.Update(ctx, req.Version.Ref(), "thumbnail", component.Ref()); err != nil {
			return nil, fmt.Errorf("failed to set thumbnail of %s: %w", req.Version, err)
		}
		util.InfoLog("Set %s as thumbnail of %s", component, req.Version)
	}

	if err := e.Session.Commit(ctx); err != nil {
		return nil, err
	}
	e.Events.LogCommit(req.Index, string(result.Mode), component.ID, req.Path, location.Name, result.Members)
	return result, nil
}

// overwrite replaces the files behind component: placements in location
// are removed, current members deleted, and the new file or sequence is
// staged in origin and added to location. Returns the rebuilt component
// and its member count.
func (e *Engine) overwrite(ctx context.Context, component *session.Entity, path string, location *session.Location) (*session.Entity, int, error) {
	s := e.Session
	origin, err := s.LocationByName(ctx, session.OriginLocation)
	if err != nil {
		return nil, 0, err
	}

	members, err := s.Members(ctx, component.Ref())
	if err != nil {
		return nil, 0, err
	}

	for _, c := range append(append([]session.Entity(nil), members...), *component) {
		placements, err := s.ComponentLocations(ctx, c.Ref())
		if err != nil {
			return nil, 0, err
		}
		for _, p := range placements {
			if p.LocationID != location.ID {
				continue
			}
			if err := s.RemoveComponent(ctx, location, c.Ref(), false); err != nil {
				return nil, 0, err
			}
		}
	}

	for _, m := range members {
		if err := s.Delete(ctx, m.Ref()); err != nil {
			return nil, 0, err
		}
	}
	if err := s.Commit(ctx); err != nil {
		return nil, 0, err
	}
	util.DebugLog("Removed %d member(s) of %s", len(members), component)
	members = nil

	coll, err := sequence.Parse(path)
	switch {
	case errors.Is(err, sequence.ErrNotSequence):
		if err := s.Update(ctx, component.Ref(), "file_type", filepath.Ext(path)); err != nil {
			return nil, 0, err
		}
		if err := s.AddComponent(ctx, origin, component.Ref(), session.FromPath(path), false); err != nil {
			return nil, 0, err
		}

	case err != nil:
		return nil, 0, err

	default:
		if coll.Len() == 0 {
			if err := coll.Discover(e.Fs); err != nil {
				return nil, 0, err
			}
		}
		if coll.Len() == 0 {
			return nil, 0, fmt.Errorf("%s: no member files found", path)
		}
		if err := s.Update(ctx, component.Ref(), "file_type", coll.Tail); err != nil {
			return nil, 0, err
		}
		if component.Type == session.TypeSequenceComponent {
			if err := s.Update(ctx, component.Ref(), "padding", coll.Padding); err != nil {
				return nil, 0, err
			}
		}
		for _, index := range coll.Indexes {
			memberPath := coll.Member(index)
			member, err := s.Create(ctx, session.TypeFileComponent, session.NewData(
				"name", coll.IndexToken(index),
				"container", component.Ref(),
				"size", util.SizeOrZero(e.Fs, memberPath),
				"file_type", filepath.Ext(memberPath),
			))
			if err != nil {
				return nil, 0, err
			}
			if err := s.AddComponent(ctx, origin, member.Ref(), session.FromPath(memberPath), false); err != nil {
				return nil, 0, err
			}
			members = append(members, *member)
		}
		if err := s.AddComponent(ctx, origin, component.Ref(), session.FromPath(coll.String()), false); err != nil {
			return nil, 0, err
		}
	}

	if err := s.AddComponent(ctx, location, component.Ref(), session.FromLocation(origin), true); err != nil {
		return nil, 0, err
	}

	rebuilt, err := s.Get(ctx, component.Type, component.ID)
	if err != nil {
		return nil, 0, err
	}
	return rebuilt, len(members), nil
}
