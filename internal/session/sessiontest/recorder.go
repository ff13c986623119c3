// Package sessiontest provides helpers for testing code that drives a
// session.Session.
package sessiontest

import (
	"context"
	"sync"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

// writeCalls are the operations that change persistent state.
var writeCalls = map[string]bool{
	"Create":          true,
	"Update":          true,
	"Delete":          true,
	"SetMetadata":     true,
	"Commit":          true,
	"AddComponent":    true,
	"RemoveComponent": true,
	"CreateComponent": true,
	"CreateThumbnail": true,
}

// Recorder wraps a Session and records the name of every call.
type Recorder struct {
	inner session.Session

	mu    sync.Mutex
	calls []string
}

// NewRecorder wraps s.
func NewRecorder(s session.Session) *Recorder {
	return &Recorder{inner: s}
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

// Calls returns every recorded call name in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how often name was called.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// Writes returns the recorded calls that change state.
func (r *Recorder) Writes() []string {
	var out []string
	for _, c := range r.Calls() {
		if writeCalls[c] {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) Query(ctx context.Context, expr string) ([]session.Entity, error) {
	r.record("Query")
	return r.inner.Query(ctx, expr)
}

func (r *Recorder) Get(ctx context.Context, entityType, id string) (*session.Entity, error) {
	r.record("Get")
	return r.inner.Get(ctx, entityType, id)
}

func (r *Recorder) Create(ctx context.Context, entityType string, data *session.Data) (*session.Entity, error) {
	r.record("Create")
	return r.inner.Create(ctx, entityType, data)
}

func (r *Recorder) Update(ctx context.Context, ref session.Ref, attr string, value any) error {
	r.record("Update")
	return r.inner.Update(ctx, ref, attr, value)
}

func (r *Recorder) Delete(ctx context.Context, ref session.Ref) error {
	r.record("Delete")
	return r.inner.Delete(ctx, ref)
}

func (r *Recorder) Metadata(ctx context.Context, ref session.Ref) (session.Metadata, error) {
	r.record("Metadata")
	return r.inner.Metadata(ctx, ref)
}

func (r *Recorder) SetMetadata(ctx context.Context, ref session.Ref, md session.Metadata) error {
	r.record("SetMetadata")
	return r.inner.SetMetadata(ctx, ref, md)
}

func (r *Recorder) Commit(ctx context.Context) error {
	r.record("Commit")
	return r.inner.Commit(ctx)
}

func (r *Recorder) PickLocation(ctx context.Context) (*session.Location, error) {
	r.record("PickLocation")
	return r.inner.PickLocation(ctx)
}

func (r *Recorder) LocationByName(ctx context.Context, name string) (*session.Location, error) {
	r.record("LocationByName")
	return r.inner.LocationByName(ctx, name)
}

func (r *Recorder) ComponentLocations(ctx context.Context, component session.Ref) ([]session.Placement, error) {
	r.record("ComponentLocations")
	return r.inner.ComponentLocations(ctx, component)
}

func (r *Recorder) AddComponent(ctx context.Context, loc *session.Location, component session.Ref, src session.Source, recursive bool) error {
	r.record("AddComponent")
	return r.inner.AddComponent(ctx, loc, component, src, recursive)
}

func (r *Recorder) RemoveComponent(ctx context.Context, loc *session.Location, component session.Ref, recursive bool) error {
	r.record("RemoveComponent")
	return r.inner.RemoveComponent(ctx, loc, component, recursive)
}

func (r *Recorder) CreateComponent(ctx context.Context, version session.Ref, path string, data *session.Data, loc *session.Location) (*session.Entity, error) {
	r.record("CreateComponent")
	return r.inner.CreateComponent(ctx, version, path, data, loc)
}

func (r *Recorder) CreateThumbnail(ctx context.Context, owner session.Ref, path string) (*session.Entity, error) {
	r.record("CreateThumbnail")
	return r.inner.CreateThumbnail(ctx, owner, path)
}

func (r *Recorder) Members(ctx context.Context, component session.Ref) ([]session.Entity, error) {
	r.record("Members")
	return r.inner.Members(ctx, component)
}

var _ session.Session = (*Recorder)(nil)
