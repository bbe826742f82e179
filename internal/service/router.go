package service

import (
	"context"
	"fmt"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/queue"
)

// MessageRouter dispatches queue messages to their stage handler.
type MessageRouter struct {
	chunker *Chunker
	writer  *WriteConsumer
	logs    *LogConsumer
}

// NewMessageRouter creates a MessageRouter.
func NewMessageRouter(chunker *Chunker, writer *WriteConsumer, logs *LogConsumer) *MessageRouter {
	return &MessageRouter{chunker: chunker, writer: writer, logs: logs}
}

// Handle decodes body and runs the matching handler. It satisfies
// queue.Handler.
func (r *MessageRouter) Handle(ctx context.Context, body []byte) error {
	env, err := queue.Decode(body)
	if err != nil {
		return err
	}
	ctx = logger.SetMessageType(ctx, string(env.Type))

	switch env.Type {
	case domain.MessageTypeChunk:
		var msg domain.ChunkMessage
		if err := env.Into(&msg); err != nil {
			return err
		}
		return r.chunker.ProcessChunk(ctx, msg)
	case domain.MessageTypeWriteBatch:
		var msg domain.WriteBatchMessage
		if err := env.Into(&msg); err != nil {
			return err
		}
		return r.writer.Consume(ctx, msg)
	case domain.MessageTypeLogBatch:
		var msg domain.LogBatchMessage
		if err := env.Into(&msg); err != nil {
			return err
		}
		return r.logs.Consume(ctx, msg)
	default:
		return fmt.Errorf("%w: %q", queue.ErrUnknownMessage, env.Type)
	}
}
