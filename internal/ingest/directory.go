package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/async"
	"github.com/lensworks/invoicelens/internal/common"
)

// FileResult is the per-file outcome of a directory run.
type FileResult struct {
	Path     string
	RecordID string
	Err      string
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// IngestDirectory walks root, filters by includeExts (or the supported
// defaults), skips hidden entries if requested, and ingests every match on
// a worker queue. It returns per-file results plus aggregate stats once the
// queue has drained, so results arrive in completion order, not walk order.
func (d *DirectoryIngestor) IngestDirectory(ctx context.Context, tenantID, root string, includeExts []string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	exts := extSet(includeExts)

	var (
		mu      sync.Mutex
		results []FileResult
		stats   DirStats
	)

	queue := async.NewProcessorQueue(async.RunnerFunc(func(ctx context.Context, job async.Job) error {
		inv, err := d.IngestPath(ctx, job.TenantID, job.Path)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results = append(results, FileResult{Path: job.Path, Err: err.Error()})
			stats.Failed++
			return err
		}
		results = append(results, FileResult{Path: job.Path, RecordID: inv.ID.Hex()})
		stats.Succeeded++
		return nil
	}), d.logger,
		async.WithWorkers(d.workers),
		async.WithQueueSize(d.queueSize),
		async.WithProcessTimeout(d.timeout),
	)

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Scanned++
		if err != nil {
			mu.Lock()
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			mu.Unlock()
			return nil // continue walking
		}
		if skipHidden && isHidden(path) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := exts[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			return nil
		}
		stats.Matched++
		return queue.Enqueue(ctx, async.Job{
			TenantID:    tenantID,
			Path:        path,
			SubmittedAt: time.Now().UTC(),
			TraceID:     uuid.NewString(),
		})
	})

	// Drain in-flight jobs before reading results.
	queue.Shutdown(ctx)

	return results, stats, common.WrapError(walkErr, "walk")
}

func extSet(includeExts []string) map[string]struct{} {
	if len(includeExts) == 0 {
		out := make(map[string]struct{}, len(constants.AllowedExtensions))
		for e := range constants.AllowedExtensions {
			out[e] = struct{}{}
		}
		return out
	}
	out := map[string]struct{}{}
	for _, e := range includeExts {
		e = constants.NormalizeExt(strings.TrimSpace(e))
		if e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
