package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/queue"
	"github.com/timmy/catalogetl/internal/repository"
	"github.com/timmy/catalogetl/internal/source"
	"github.com/timmy/catalogetl/internal/storage"
)

// ErrInvalidRequest is returned for ingestion requests missing a field.
var ErrInvalidRequest = errors.New("invalid ingest request")

// IngestService handles the data ingestion pipeline
type IngestService struct {
	storage    storage.ObjectStorage
	jobs       *repository.JobRepository
	dispatcher *Dispatcher
	writer     *WriteConsumer
	logs       *LogConsumer
	cfg        ChunkerConfig
}

// NewIngestService creates a new ingest service. dispatcher feeds the
// streaming pipeline; writer and logs serve whole-file runs, which use
// their own in-process queues.
func NewIngestService(
	objectStorage storage.ObjectStorage,
	jobs *repository.JobRepository,
	dispatcher *Dispatcher,
	writer *WriteConsumer,
	logs *LogConsumer,
	cfg ChunkerConfig,
) *IngestService {
	return &IngestService{
		storage:    objectStorage,
		jobs:       jobs,
		dispatcher: dispatcher,
		writer:     writer,
		logs:       logs,
		cfg:        cfg,
	}
}

// StartRequest names the catalog file to import.
type StartRequest struct {
	Source      string `json:"source" binding:"required"`
	ObjectKey   string `json:"object_key" binding:"required"`
	RevisionTag string `json:"revision_tag"`
}

func (r StartRequest) validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ObjectKey) == "" {
		return fmt.Errorf("%w: object key is required", ErrInvalidRequest)
	}
	return nil
}

func (s *IngestService) createJob(ctx context.Context, req StartRequest, total *int) (*domain.ETLJob, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	exists, err := s.storage.Exists(ctx, req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", req.ObjectKey, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, req.ObjectKey)
	}

	job := &domain.ETLJob{
		Source:      req.Source,
		Filename:    req.ObjectKey,
		RevisionTag: req.RevisionTag,
		TotalCount:  total,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func firstChunk(job *domain.ETLJob) domain.ChunkMessage {
	return domain.ChunkMessage{
		JobID:       job.ID,
		ObjectKey:   job.Filename,
		Source:      job.Source,
		RevisionTag: job.RevisionTag,
		StartRow:    0,
	}
}

// StartJob creates a running job for req and enqueues its first chunk. The
// job then advances through the queues; its total is learnt when the last
// chunk is read.
func (s *IngestService) StartJob(ctx context.Context, req StartRequest) (*domain.ETLJob, error) {
	job, err := s.createJob(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, job.ID)

	if err := s.dispatcher.SendChunk(ctx, firstChunk(job)); err != nil {
		s.fail(ctx, job.ID, err)
		return nil, err
	}
	logger.CtxInfo(ctx, "Started job for %s", job.Filename)
	return job, nil
}

// StartJobs starts one job per request and enqueues all first chunks
// together. It stops at the first request that cannot be started.
func (s *IngestService) StartJobs(ctx context.Context, reqs []StartRequest) ([]*domain.ETLJob, error) {
	jobs := make([]*domain.ETLJob, 0, len(reqs))
	msgs := make([]domain.ChunkMessage, 0, len(reqs))
	for _, req := range reqs {
		job, err := s.createJob(ctx, req, nil)
		if err != nil {
			for _, created := range jobs {
				s.fail(ctx, created.ID, err)
			}
			return nil, fmt.Errorf("start job for %s: %w", req.ObjectKey, err)
		}
		jobs = append(jobs, job)
		msgs = append(msgs, firstChunk(job))
	}

	if err := s.dispatcher.SendChunks(ctx, msgs); err != nil {
		for _, job := range jobs {
			s.fail(ctx, job.ID, err)
		}
		return nil, err
	}
	logger.With(logger.Fields{logger.FieldCount: len(jobs)}).Info(ctx, "Started jobs")
	return jobs, nil
}

// IngestFile imports req in one process: rows are counted first, then
// the whole file is streamed through in-process queues and the job is
// completed explicitly.
func (s *IngestService) IngestFile(ctx context.Context, req StartRequest) (*domain.ETLJob, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	total, err := s.countRows(ctx, req.ObjectKey)
	if err != nil {
		return nil, err
	}
	job, err := s.createJob(ctx, req, &total)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, job.ID)

	chunks, writes, logs := queue.NewMemoryQueue(), queue.NewMemoryQueue(), queue.NewMemoryQueue()
	dispatcher := NewDispatcher(chunks, writes, logs)
	cfg := s.cfg
	cfg.ChunkSize = 0
	router := NewMessageRouter(NewChunker(s.storage, dispatcher, s.jobs, cfg), s.writer, s.logs)

	if err := dispatcher.SendChunk(ctx, firstChunk(job)); err != nil {
		s.fail(ctx, job.ID, err)
		return nil, err
	}
	for _, q := range []*queue.MemoryQueue{chunks, writes, logs} {
		if _, err := q.Drain(ctx, router.Handle); err != nil {
			s.fail(ctx, job.ID, err)
			return nil, err
		}
	}

	if err := s.jobs.Complete(ctx, job.ID); err != nil {
		return nil, err
	}
	done, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldValid:   done.Valid(),
		logger.FieldInvalid: done.Invalid(),
		logger.FieldStatus:  done.Status,
	}).WithCount(total).WithDuration(start).Info(ctx, "Whole-file ingestion finished")
	return done, nil
}

// countRows returns the number of non-blank data rows below the header.
func (s *IngestService) countRows(ctx context.Context, key string) (int, error) {
	body, err := s.storage.Download(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", key, err)
	}
	defer body.Close()

	reader := source.NewRecordReader(body, s.cfg.ReadSize)
	records := 0
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if !source.IsBlank(record) {
			records++
		}
	}
	if records == 0 {
		return 0, nil
	}
	return records - 1, nil
}

// GetJob returns the job with id.
func (s *IngestService) GetJob(ctx context.Context, id string) (*domain.ETLJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns recent jobs, newest first.
func (s *IngestService) ListJobs(ctx context.Context, limit, offset int) ([]domain.ETLJob, error) {
	return s.jobs.List(ctx, limit, offset)
}

func (s *IngestService) fail(ctx context.Context, jobID string, cause error) {
	if err := s.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, cause); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark job as failed")
	}
}

// ListInvalidItems returns a page of the rows rejected for job id.
func (s *IngestService) ListInvalidItems(ctx context.Context, id string, limit, offset int) (*InvalidItemPage, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, id, limit, offset)
}
