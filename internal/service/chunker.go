package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/timmy/catalogetl/internal/catalog"
	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/repository"
	"github.com/timmy/catalogetl/internal/source"
	"github.com/timmy/catalogetl/internal/storage"
)

const (
	defaultBatchSize        = 10
	defaultInvalidBatchSize = 10
)

// ChunkerConfig holds configuration for the chunk worker.
type ChunkerConfig struct {
	// ChunkSize is the number of data rows one invocation processes. Zero
	// processes the rest of the file and never continues.
	ChunkSize        int
	BatchSize        int
	InvalidBatchSize int
	FlushDelay       time.Duration
	ReadSize         int
}

func (c *ChunkerConfig) applyDefaults() {
	if c.ChunkSize < 0 {
		c.ChunkSize = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.InvalidBatchSize <= 0 {
		c.InvalidBatchSize = defaultInvalidBatchSize
	}
}

// Chunker streams one slice of a catalog file, maps and validates its rows
// and fans them out to the write and log queues.
type Chunker struct {
	storage    storage.ObjectStorage
	dispatcher *Dispatcher
	jobs       *repository.JobRepository
	cfg        ChunkerConfig
}

// NewChunker creates a new Chunker.
func NewChunker(objectStorage storage.ObjectStorage, dispatcher *Dispatcher, jobs *repository.JobRepository, cfg ChunkerConfig) *Chunker {
	cfg.applyDefaults()
	return &Chunker{
		storage:    objectStorage,
		dispatcher: dispatcher,
		jobs:       jobs,
		cfg:        cfg,
	}
}

// ChunkResult summarizes one ProcessChunk call.
type ChunkResult struct {
	Consumed     int
	Valid        int
	Invalid      int
	Continued    bool
	BytesRead    int64
	WriteBatches int
	LogBatches   int
}

// ProcessChunk handles rows [msg.StartRow, msg.StartRow+ChunkSize) of the
// file. When the chunk is full a continuation is enqueued; otherwise the
// file is done and the job's total row count is recorded. Any error marks
// the job failed before it is returned.
func (c *Chunker) ProcessChunk(ctx context.Context, msg domain.ChunkMessage) error {
	_, err := c.Process(ctx, msg)
	return err
}

// Process is ProcessChunk returning the chunk summary.
func (c *Chunker) Process(ctx context.Context, msg domain.ChunkMessage) (*ChunkResult, error) {
	ctx = logger.SetJobID(ctx, msg.JobID)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldObjectKey: msg.ObjectKey,
		logger.FieldStartRow:  msg.StartRow,
	})
	start := time.Now()

	res, err := c.process(ctx, msg)
	if err != nil {
		// The job must be marked even when ctx was cancelled.
		if markErr := c.jobs.MarkFailed(context.WithoutCancel(ctx), msg.JobID, err); markErr != nil {
			logger.FromContext(ctx).WithError(markErr).Error("Failed to mark job as failed")
		}
		logger.FromContext(ctx).WithError(err).Error("Chunk processing failed")
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldValid:   res.Valid,
		logger.FieldInvalid: res.Invalid,
		"continued":         res.Continued,
		"bytes_read":        res.BytesRead,
	}).WithCount(res.Consumed).WithDuration(start).Info(ctx, "Chunk processed")
	return res, nil
}

// chunkRun is the per-invocation state of process.
type chunkRun struct {
	c        *Chunker
	msg      domain.ChunkMessage
	valid    []*domain.CatalogItem
	invalid  []domain.InvalidRow
	consumed int
	flushed  bool
	res      ChunkResult
}

func (c *Chunker) process(ctx context.Context, msg domain.ChunkMessage) (*ChunkResult, error) {
	if msg.StartRow < 0 {
		return nil, fmt.Errorf("invalid start row %d", msg.StartRow)
	}

	body, err := c.storage.Download(ctx, msg.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", msg.ObjectKey, err)
	}
	defer body.Close()

	reader := source.NewRecordReader(body, c.cfg.ReadSize)
	run := &chunkRun{c: c, msg: msg}
	bounded := c.cfg.ChunkSize > 0

	var header source.HeaderIndex
	row := 0
	for {
		if bounded && run.consumed == c.cfg.ChunkSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if source.IsBlank(record) {
			continue
		}
		if header == nil {
			header = source.NewHeaderIndex(source.SplitFields(record))
			continue
		}
		if row < msg.StartRow {
			row++
			continue
		}

		if err := run.add(ctx, row, record, header); err != nil {
			return nil, err
		}
		row++
	}

	if err := run.flushValid(ctx); err != nil {
		return nil, err
	}
	if err := run.flushInvalid(ctx); err != nil {
		return nil, err
	}

	run.res.Consumed = run.consumed
	run.res.BytesRead = reader.BytesRead()

	if bounded && run.consumed == c.cfg.ChunkSize {
		next := msg
		next.StartRow = msg.StartRow + c.cfg.ChunkSize
		if err := c.dispatcher.SendChunk(ctx, next); err != nil {
			return nil, err
		}
		run.res.Continued = true
		return &run.res, nil
	}

	if err := c.jobs.SetTotalCount(ctx, msg.JobID, msg.StartRow+run.consumed); err != nil {
		return nil, err
	}
	return &run.res, nil
}

func (r *chunkRun) add(ctx context.Context, rowIndex int, record string, header source.HeaderIndex) error {
	item := catalog.MapRow(source.SplitFields(record), header)
	result := catalog.Validate(item)
	r.consumed++

	if result.IsValid {
		r.valid = append(r.valid, item)
		r.res.Valid++
		if len(r.valid) >= r.c.cfg.BatchSize {
			return r.flushValid(ctx)
		}
		return nil
	}

	r.invalid = append(r.invalid, domain.InvalidRow{
		RowIndex: rowIndex,
		Errors:   result.Errors,
		Raw:      item,
	})
	r.res.Invalid++
	if len(r.invalid) >= r.c.cfg.InvalidBatchSize {
		return r.flushInvalid(ctx)
	}
	return nil
}

func (r *chunkRun) runningTotal() int {
	return r.msg.StartRow + r.consumed
}

// pause spaces consecutive flushes by FlushDelay.
func (r *chunkRun) pause(ctx context.Context) error {
	if !r.flushed || r.c.cfg.FlushDelay <= 0 {
		r.flushed = true
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.c.cfg.FlushDelay):
		return nil
	}
}

func (r *chunkRun) flushValid(ctx context.Context) error {
	if len(r.valid) == 0 {
		return nil
	}
	if err := r.pause(ctx); err != nil {
		return err
	}
	err := r.c.dispatcher.SendWriteBatch(ctx, domain.WriteBatchMessage{
		JobID:        r.msg.JobID,
		Items:        r.valid,
		RunningTotal: r.runningTotal(),
	})
	if err != nil {
		return err
	}
	r.valid = nil
	r.res.WriteBatches++
	return nil
}

func (r *chunkRun) flushInvalid(ctx context.Context) error {
	if len(r.invalid) == 0 {
		return nil
	}
	if err := r.pause(ctx); err != nil {
		return err
	}
	err := r.c.dispatcher.SendLogBatch(ctx, domain.LogBatchMessage{
		JobID:        r.msg.JobID,
		InvalidItems: r.invalid,
		RunningTotal: r.runningTotal(),
	})
	if err != nil {
		return err
	}
	r.invalid = nil
	r.res.LogBatches++
	return nil
}
