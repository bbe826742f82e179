package service

import (
	"context"
	"time"

	"github.com/timmy/catalogetl/internal/catalog"
	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/repository"
)

// VectorWriter mirrors stored embeddings into a vector index.
type VectorWriter interface {
	UpsertItems(ctx context.Context, items []*domain.CatalogItem) (int, error)
}

// WriteConsumer persists batches of validated rows.
type WriteConsumer struct {
	items     *repository.CatalogRepository
	jobs      *repository.JobRepository
	embedding EmbeddingProvider
	vectors   VectorWriter
}

// NewWriteConsumer creates a WriteConsumer. embedding and vectors may be
// nil, in which case items are stored without embeddings or without the
// vector mirror.
func NewWriteConsumer(items *repository.CatalogRepository, jobs *repository.JobRepository, embedding EmbeddingProvider, vectors VectorWriter) *WriteConsumer {
	return &WriteConsumer{
		items:     items,
		jobs:      jobs,
		embedding: embedding,
		vectors:   vectors,
	}
}

// Consume merges the batch by SKU, embeds and upserts the merged items,
// links them to the job and counts every original row as valid.
// Embedding and vector-index failures are logged; the batch is still
// stored.
func (w *WriteConsumer) Consume(ctx context.Context, msg domain.WriteBatchMessage) error {
	ctx = logger.SetJobID(ctx, msg.JobID)
	ctx = logger.SetComponent(ctx, "write_consumer")
	start := time.Now()

	merged := catalog.MergeBySKU(msg.Items)
	w.embed(ctx, merged)

	stored, err := w.items.UpsertBatch(ctx, merged)
	if err != nil {
		return err
	}
	w.refreshEmbeddings(ctx, merged, stored)

	ids := make([]string, 0, len(stored))
	for _, item := range stored {
		ids = append(ids, item.ID)
	}
	if err := w.items.LinkJob(ctx, msg.JobID, ids); err != nil {
		return err
	}

	if w.vectors != nil {
		if _, err := w.vectors.UpsertItems(ctx, stored); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to mirror embeddings to vector index")
		}
	}

	if err := w.jobs.ApplyProgress(ctx, msg.JobID, len(msg.Items), 0); err != nil {
		return err
	}

	logger.With(logger.Fields{
		"merged":        len(merged),
		"running_total": msg.RunningTotal,
	}).WithCount(len(msg.Items)).WithDuration(start).Info(ctx, "Write batch stored")
	return nil
}

// embed sets Embedding on items from one batched provider call.
func (w *WriteConsumer) embed(ctx context.Context, items []*domain.CatalogItem) {
	if w.embedding == nil || len(items) == 0 {
		return
	}
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = BuildEmbeddingText(item)
	}

	vectors, err := w.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Embedding failed, storing batch without embeddings")
		return
	}
	for i := range items {
		if i < len(vectors) {
			items[i].Embedding = vectors[i]
		}
	}
}

// refreshEmbeddings re-embeds stored rows whose text inputs were kept from
// an earlier import, so the vector describes what is actually stored.
func (w *WriteConsumer) refreshEmbeddings(ctx context.Context, written, stored []*domain.CatalogItem) {
	if w.embedding == nil {
		return
	}
	bySKU := make(map[string]*domain.CatalogItem, len(written))
	for _, item := range written {
		bySKU[item.SKU] = item
	}

	var stale []*domain.CatalogItem
	for _, s := range stored {
		if in, ok := bySKU[s.SKU]; ok && embeddingInputsChanged(in, s) {
			stale = append(stale, s)
		}
	}
	if len(stale) == 0 {
		return
	}

	texts := make([]string, len(stale))
	for i, item := range stale {
		texts[i] = BuildEmbeddingText(item)
	}
	vectors, err := w.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to refresh embeddings of merged items")
		return
	}
	for i, item := range stale {
		if i >= len(vectors) {
			break
		}
		if err := w.items.UpdateEmbedding(ctx, item.ID, vectors[i]); err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldSKU, item.SKU).
				Warn("Failed to save refreshed embedding")
			continue
		}
		item.Embedding = vectors[i]
	}
	logger.With(logger.Fields{logger.FieldCount: len(stale)}).Debug(ctx, "Refreshed embeddings")
}
