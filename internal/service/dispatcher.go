package service

import (
	"context"
	"fmt"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/queue"
)

// Dispatcher encodes pipeline messages and sends them to the queue of
// their stage.
type Dispatcher struct {
	chunks queue.Queue
	writes queue.Queue
	logs   queue.Queue
}

// NewDispatcher creates a Dispatcher over the three stage queues.
func NewDispatcher(chunks, writes, logs queue.Queue) *Dispatcher {
	return &Dispatcher{chunks: chunks, writes: writes, logs: logs}
}

// SendChunk enqueues one chunk request, either a job's first chunk or a
// continuation.
func (d *Dispatcher) SendChunk(ctx context.Context, msg domain.ChunkMessage) error {
	body, err := queue.Encode(domain.MessageTypeChunk, msg)
	if err != nil {
		return err
	}
	if err := d.chunks.Send(ctx, body); err != nil {
		return fmt.Errorf("send chunk %s@%d: %w", msg.JobID, msg.StartRow, err)
	}
	return nil
}

// SendChunks enqueues several chunk requests in batches.
func (d *Dispatcher) SendChunks(ctx context.Context, msgs []domain.ChunkMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	bodies := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		body, err := queue.Encode(domain.MessageTypeChunk, msg)
		if err != nil {
			return err
		}
		bodies = append(bodies, body)
	}
	if err := d.chunks.SendBatch(ctx, bodies); err != nil {
		return fmt.Errorf("send %d chunks: %w", len(msgs), err)
	}
	return nil
}

// SendWriteBatch enqueues validated rows for the catalog writer.
func (d *Dispatcher) SendWriteBatch(ctx context.Context, msg domain.WriteBatchMessage) error {
	body, err := queue.Encode(domain.MessageTypeWriteBatch, msg)
	if err != nil {
		return err
	}
	if err := d.writes.Send(ctx, body); err != nil {
		return fmt.Errorf("send write batch of %d items: %w", len(msg.Items), err)
	}
	return nil
}

// SendLogBatch enqueues rejected rows for the invalid-item logger.
func (d *Dispatcher) SendLogBatch(ctx context.Context, msg domain.LogBatchMessage) error {
	body, err := queue.Encode(domain.MessageTypeLogBatch, msg)
	if err != nil {
		return err
	}
	if err := d.logs.Send(ctx, body); err != nil {
		return fmt.Errorf("send log batch of %d rows: %w", len(msg.InvalidItems), err)
	}
	return nil
}
