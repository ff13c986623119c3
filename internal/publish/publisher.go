package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/sequence"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// Publisher runs every deliverable of a task through the entity chain
type Publisher struct {
	session      session.Session
	fs           afero.Fs
	reconciler   *Reconciler
	propagator   *Propagator
	engine       *Engine
	events       *report.EventLogger
	probeTags    bool
	showProgress bool
}

// Config holds publisher configuration
type Config struct {
	Fs             afero.Fs // Filesystem for thumbnails, members and tags (nil = OS)
	Events         *report.EventLogger
	AllowAmbiguous bool // Take the first match when identities are ambiguous
	ProbeTags      bool // Probe audio tags for every deliverable
	ShowProgress   bool
}

// Result summarizes a publish run
type Result struct {
	Deliverables int
	Created      map[string]int
	Reused       map[string]int
	Commits      map[Mode]int
	Thumbnails   int
	Duration     time.Duration
}

// New creates a publisher over s
func New(s session.Session, cfg *Config) *Publisher {
	if cfg == nil {
		cfg = &Config{}
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	reconciler := NewReconciler(s, cfg.Events)
	reconciler.Strict = !cfg.AllowAmbiguous
	engine := NewEngine(s, fs, cfg.Events)
	engine.Strict = !cfg.AllowAmbiguous

	return &Publisher{
		session:      s,
		fs:           fs,
		reconciler:   reconciler,
		propagator:   NewPropagator(s, fs, cfg.Events),
		engine:       engine,
		events:       cfg.Events,
		probeTags:    cfg.ProbeTags,
		showProgress: cfg.ShowProgress,
	}
}

// Publish processes deliverables in order and sets each one's Component.
// The first failure stops the run.
func (p *Publisher) Publish(ctx context.Context, task *session.Entity, deliverables []*Deliverable) (*Result, error) {
	start := time.Now()
	result := &Result{
		Created: make(map[string]int),
		Reused:  make(map[string]int),
		Commits: make(map[Mode]int),
	}
	if task == nil {
		return nil, fmt.Errorf("no task to publish to")
	}

	var bar *progressbar.ProgressBar
	if p.showProgress && len(deliverables) > 1 {
		bar = progressbar.NewOptions(len(deliverables),
			progressbar.OptionSetDescription("Publishing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	util.InfoLog("Publishing %d deliverable(s) to %s", len(deliverables), task)
	for i, d := range deliverables {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.publishOne(ctx, i, task, d, result); err != nil {
			p.events.LogError(i, d.ComponentPath, err)
			return result, fmt.Errorf("deliverable %d (%s): %w", i, d.ComponentPath, err)
		}
		result.Deliverables++
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *Publisher) publishOne(ctx context.Context, index int, task *session.Entity, d *Deliverable, result *Result) error {
	if err := d.Validate(); err != nil {
		return err
	}
	count := func(r *ReconcileResult, entityType string) {
		if r.Created {
			result.Created[entityType]++
		} else {
			result.Reused[entityType]++
		}
	}

	assetType, err := p.reconciler.Reconcile(ctx, ReconcileRequest{
		Index:    index,
		Type:     session.TypeAssetType,
		Identity: session.NewData("short", "upload"),
		Extra:    d.AssetTypeData,
		Metadata: d.AssetTypeMetadata,
	})
	if err != nil {
		return err
	}
	count(assetType, session.TypeAssetType)

	assetIdentity := session.NewData(
		"name", normalizeName(task.GetString("name")),
		"type", assetType.Entity.Ref(),
	)
	if parent, ok := task.GetRef("parent"); ok {
		assetIdentity.Set("parent", parent)
	}
	asset, err := p.reconciler.Reconcile(ctx, ReconcileRequest{
		Index:    index,
		Type:     session.TypeAsset,
		Identity: assetIdentity,
		Extra:    d.AssetData,
		Metadata: d.AssetMetadata,
	})
	if err != nil {
		return err
	}
	count(asset, session.TypeAsset)

	version, err := p.reconciler.Reconcile(ctx, ReconcileRequest{
		Index:    index,
		Type:     session.TypeAssetVersion,
		Identity: session.NewData("version", 0, "asset", asset.Entity.Ref(), "task", task.Ref()),
		Extra:    d.AssetVersionData,
		Metadata: d.AssetVersionMetadata,
	})
	if err != nil {
		return err
	}
	count(version, session.TypeAssetVersion)

	p.propagator.Index = index
	thumbnail, err := p.propagator.Propagate(ctx, version.Entity, d.ThumbnailPath, task, d.PropagateThumbToParents)
	if err != nil {
		return err
	}
	if thumbnail != nil {
		result.Thumbnails++
	}

	// The version must be committed before a location can place files for it
	if err := p.session.Commit(ctx); err != nil {
		return err
	}

	var location *session.Location
	if d.ComponentLocation != "" {
		location, err = p.session.LocationByName(ctx, d.ComponentLocation)
		if err != nil {
			return err
		}
	}

	commit, err := p.engine.Commit(ctx, CommitRequest{
		Index:          index,
		Version:        version.Entity,
		Identity:       session.NewData("name", "main", "version", version.Entity.Ref()).Merge(d.ComponentData),
		Metadata:       p.componentMetadata(d),
		Path:           d.ComponentPath,
		Location:       location,
		Overwrite:      d.ComponentOverwrite,
		SetAsThumbnail: d.Thumbnail,
	})
	if err != nil {
		return err
	}
	result.Commits[commit.Mode]++
	d.Component = commit.Component
	return nil
}

// componentMetadata adds probed tags under the explicit metadata
func (p *Publisher) componentMetadata(d *Deliverable) session.Metadata {
	explicit := d.ComponentMetadata
	if !p.probeTags && !d.ProbeTags {
		return explicit
	}
	if _, err := sequence.Parse(d.ComponentPath); err == nil {
		util.DebugLog("Not probing tags of sequence %s", d.ComponentPath)
		return explicit
	}
	probed, err := ProbeTags(p.fs, d.ComponentPath)
	if err != nil {
		util.DebugLog("No tags in %s: %v", d.ComponentPath, err)
		return explicit
	}
	return probed.Merge(explicit)
}
