package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lensworks/invoicelens/constants"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/pipeline"
)

// FileIngestor is the slice of the pipeline the batch side needs.
type FileIngestor interface {
	IngestFile(ctx context.Context, in pipeline.IngestRequest) (*entity.Invoice, error)
}

// DirectoryIngestor feeds local files through the ingestion pipeline, one
// job per file, on a bounded worker queue.
type DirectoryIngestor struct {
	proc      FileIngestor
	logger    *slog.Logger
	workers   int
	queueSize int
	timeout   time.Duration
}

// New creates a DirectoryIngestor sized by the pipeline config.
func New(proc FileIngestor, cfg common.PipelineConfig, logger *slog.Logger) *DirectoryIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryIngestor{
		proc:      proc,
		logger:    logger,
		workers:   cfg.Workers,
		queueSize: cfg.QueueSize,
		timeout:   cfg.ProcessTimeout,
	}
}

// IngestPath reads one file off disk and runs it through the pipeline.
func (d *DirectoryIngestor) IngestPath(ctx context.Context, tenantID, path string) (*entity.Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError("STORAGE_ERROR", fmt.Sprintf("read %s: %v", path, err), common.ErrStorage)
	}
	return d.proc.IngestFile(ctx, pipeline.IngestRequest{
		TenantID: tenantID,
		FileName: filepath.Base(path),
		MimeType: constants.MimeTypeForExt(filepath.Ext(path)),
		Data:     data,
	})
}
