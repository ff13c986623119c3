package publish

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// Propagator attaches a thumbnail to a version and, optionally, to the
// task and its ancestors
type Propagator struct {
	Session session.Session
	Fs      afero.Fs
	Events  *report.EventLogger
	Index   int // deliverable index for events
}

// NewPropagator returns a propagator reading thumbnails from fs
func NewPropagator(s session.Session, fs afero.Fs, events *report.EventLogger) *Propagator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Propagator{Session: s, Fs: fs, Events: events}
}

// Propagate creates a thumbnail for version from thumbnailPath. With
// parentCount > 0 the thumbnail is also assigned to the first parentCount
// entities of task's link chain, closest first (the task itself is the
// first), skipping those without a thumbnail attribute. It never creates
// anything but the thumbnail. Returns nil when the file does not exist.
// The assignments are pending until the next commit.
func (p *Propagator) Propagate(ctx context.Context, version *session.Entity, thumbnailPath string, task *session.Entity, parentCount int) (*session.Entity, error) {
	if !p.isFile(thumbnailPath) {
		util.InfoLog("Thumbnail file did not exist: %q.", thumbnailPath)
		p.Events.LogThumbnail(p.Index, version.ID, "", thumbnailPath)
		return nil, nil
	}
	util.InfoLog("Got thumbnail: %q.", thumbnailPath)

	thumbnail, err := p.Session.CreateThumbnail(ctx, version.Ref(), thumbnailPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail for %s: %w", version, err)
	}
	util.InfoLog("Created thumbnail %s", thumbnail)
	p.Events.LogThumbnail(p.Index, version.ID, thumbnail.ID, thumbnailPath)

	if parentCount <= 0 || task == nil {
		return thumbnail, nil
	}

	util.DebugLog("Propagating thumbnail to %d parent(s)", parentCount)
	for _, link := range closestFirst(task.Link(), parentCount) {
		entity, err := p.Session.Get(ctx, link.Type, link.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s %s: %w", link.Type, link.ID, err)
		}
		if !entity.Has("thumbnail") {
			util.DebugLog("%s has no thumbnail field, skipping", entity)
			continue
		}
		if err := p.Session.Update(ctx, entity.Ref(), "thumbnail", thumbnail.Ref()); err != nil {
			return nil, fmt.Errorf("failed to set thumbnail of %s: %w", entity, err)
		}
		util.InfoLog("Found thumbnail field on %s, propagating", entity)
		p.Events.LogPropagate(p.Index, entity.Type, entity.ID, thumbnail.ID)
	}
	return thumbnail, nil
}

func (p *Propagator) isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := p.Fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// closestFirst reverses a root-first link chain and keeps at most n items
func closestFirst(links []session.Link, n int) []session.Link {
	out := make([]session.Link, 0, len(links))
	for i := len(links) - 1; i >= 0; i-- {
		out = append(out, links[i])
	}
	if n < len(out) {
		out = out[:n]
	}
	return out
}
