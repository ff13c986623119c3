// Package session defines the persistence service the publish protocol
// runs against: detached entity values, ordered field mappings and the
// store, location and component-factory contracts.
//
// Writes through EntityStore are pending until Commit. Location and
// factory operations take effect immediately and commit pending writes
// first.
package session

import "context"

// EntityStore reads and writes entities.
type EntityStore interface {
	// Query runs a query expression against committed state.
	Query(ctx context.Context, expr string) ([]Entity, error)
	// Get fetches one entity, including pending changes. Missing entities
	// yield ErrNotFound.
	Get(ctx context.Context, entityType, id string) (*Entity, error)
	// Create queues a new entity and returns it with its assigned id.
	Create(ctx context.Context, entityType string, data *Data) (*Entity, error)
	// Update queues an attribute change.
	Update(ctx context.Context, ref Ref, attr string, value any) error
	// Delete queues removal of an entity.
	Delete(ctx context.Context, ref Ref) error
	// Metadata returns the current metadata, including pending changes.
	Metadata(ctx context.Context, ref Ref) (Metadata, error)
	// SetMetadata queues a full metadata replacement.
	SetMetadata(ctx context.Context, ref Ref, md Metadata) error
	// Commit applies every pending change in one transaction.
	Commit(ctx context.Context) error
}

// LocationStore manages where component data lives.
type LocationStore interface {
	PickLocation(ctx context.Context) (*Location, error)
	LocationByName(ctx context.Context, name string) (*Location, error)
	ComponentLocations(ctx context.Context, component Ref) ([]Placement, error)
	AddComponent(ctx context.Context, loc *Location, component Ref, src Source, recursive bool) error
	RemoveComponent(ctx context.Context, loc *Location, component Ref, recursive bool) error
}

// ComponentFactory creates file-backed entities in one call.
type ComponentFactory interface {
	// CreateComponent creates a component on version from a file or
	// sequence pattern, registers it in origin and adds it to loc.
	CreateComponent(ctx context.Context, version Ref, path string, data *Data, loc *Location) (*Entity, error)
	// CreateThumbnail creates a thumbnail component for owner and sets
	// owner's thumbnail to it.
	CreateThumbnail(ctx context.Context, owner Ref, path string) (*Entity, error)
	// Members lists the member components of a container component.
	Members(ctx context.Context, component Ref) ([]Entity, error)
}

// Session is the full persistence service.
type Session interface {
	EntityStore
	LocationStore
	ComponentFactory
}
