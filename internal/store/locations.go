package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

// Priority of the built-in locations; disk locations default below them
const (
	originPriority    = 1000
	unmanagedPriority = 900
	defaultPriority   = 100
)

var locationCols = []string{"id", "name", "kind", "root", "priority"}

// locationID derives a stable identifier from a location name
func locationID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ftrack-location:"+name)).String()
}

func (s *Store) seedLocations(ctx context.Context, disks []LocationConfig) error {
	builtin := []session.Location{
		{Name: session.OriginLocation, Kind: session.KindOrigin, Priority: originPriority},
		{Name: session.UnmanagedLocation, Kind: session.KindUnmanaged, Priority: unmanagedPriority},
	}
	for _, loc := range builtin {
		if _, err := s.putLocation(ctx, loc); err != nil {
			return err
		}
	}
	for _, cfg := range disks {
		if _, err := s.AddLocation(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// AddLocation registers or updates a disk location
func (s *Store) AddLocation(ctx context.Context, cfg LocationConfig) (*session.Location, error) {
	if cfg.Name == "" {
		return nil, errors.New("location name is required")
	}
	if cfg.Name == session.OriginLocation || cfg.Name == session.UnmanagedLocation {
		return nil, fmt.Errorf("location %s is built in", cfg.Name)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("location %s: root is required", cfg.Name)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("location %s: %w", cfg.Name, err)
	}
	priority := cfg.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	return s.putLocation(ctx, session.Location{
		Name:     cfg.Name,
		Kind:     session.KindDisk,
		Root:     root,
		Priority: priority,
	})
}

func (s *Store) putLocation(ctx context.Context, loc session.Location) (*session.Location, error) {
	loc.ID = locationID(loc.Name)

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("locations")
	ib.Cols(locationCols...)
	ib.Values(loc.ID, loc.Name, string(loc.Kind), loc.Root, loc.Priority)
	ib.SQL("ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, root = excluded.root, priority = excluded.priority")
	query, args := ib.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to register location %s: %w", loc.Name, err)
	}
	return &loc, nil
}

// Locations lists every location by priority
func (s *Store) Locations(ctx context.Context) ([]session.Location, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(locationCols...)
	sb.From("locations")
	sb.OrderBy("priority", "name")
	query, args := sb.Build()

	var locs []session.Location
	if err := s.db.SelectContext(ctx, &locs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locs, nil
}

// LocationByName returns the named location
func (s *Store) LocationByName(ctx context.Context, name string) (*session.Location, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(locationCols...)
	sb.From("locations")
	sb.Where(sb.Equal("name", name))
	query, args := sb.Build()

	var loc session.Location
	if err := s.db.GetContext(ctx, &loc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("location %s: %w", name, session.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load location %s: %w", name, err)
	}
	return &loc, nil
}

// PickLocation returns the preferred disk location, falling back to the
// unmanaged location when none is registered
func (s *Store) PickLocation(ctx context.Context) (*session.Location, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(locationCols...)
	sb.From("locations")
	sb.Where(sb.Equal("kind", string(session.KindDisk)))
	sb.OrderBy("priority", "name")
	sb.Limit(1)
	query, args := sb.Build()

	var loc session.Location
	err := s.db.GetContext(ctx, &loc, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return s.LocationByName(ctx, session.UnmanagedLocation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pick location: %w", err)
	}
	return &loc, nil
}

// ComponentLocations lists the placements of a component
func (s *Store) ComponentLocations(ctx context.Context, component session.Ref) ([]session.Placement, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("component_id", "location_id", "resource_identifier")
	sb.From("component_locations")
	sb.Where(sb.Equal("component_id", component.ID))
	sb.OrderBy("created_at", "location_id")
	query, args := sb.Build()

	var placements []session.Placement
	if err := s.db.SelectContext(ctx, &placements, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list placements of %s: %w", component.ID, err)
	}
	return placements, nil
}

func (s *Store) placement(ctx context.Context, locationID, componentID string) (*session.Placement, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("component_id", "location_id", "resource_identifier")
	sb.From("component_locations")
	sb.Where(sb.Equal("component_id", componentID), sb.Equal("location_id", locationID))
	query, args := sb.Build()

	var p session.Placement
	if err := s.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load placement of %s: %w", componentID, err)
	}
	return &p, nil
}

// FilesystemPath returns where a resource identifier lives on disk
func FilesystemPath(loc *session.Location, resourceIdentifier string) string {
	if loc.Kind == session.KindDisk {
		return filepath.Join(loc.Root, filepath.FromSlash(resourceIdentifier))
	}
	return resourceIdentifier
}
