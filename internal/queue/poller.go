package queue

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"github.com/timmy/catalogetl/internal/logger"
)

// PollerConfig tunes one SQS receive loop.
type PollerConfig struct {
	QueueURL          string
	MaxMessages       int32
	WaitSeconds       int32
	VisibilityTimeout int32
	Concurrency       int
	HandlerTimeout    time.Duration
	ErrorBackoff      time.Duration
}

func (c *PollerConfig) applyDefaults() {
	if c.MaxMessages <= 0 || c.MaxMessages > 10 {
		c.MaxMessages = 10
	}
	if c.WaitSeconds < 0 || c.WaitSeconds > 20 {
		c.WaitSeconds = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
}

// Poller long-polls an SQS queue and hands each message to a Handler. A
// message is deleted only after its handler succeeds; failures stay on the
// queue and come back once their visibility timeout lapses.
type Poller struct {
	name    string
	client  SQSAPI
	cfg     PollerConfig
	handler Handler
}

// NewPoller creates a Poller. name tags its log lines.
func NewPoller(name string, client SQSAPI, cfg PollerConfig, handler Handler) *Poller {
	cfg.applyDefaults()
	return &Poller{name: name, client: client, cfg: cfg, handler: handler}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "poller:"+p.name)
	logger.CtxInfo(ctx, "Starting SQS polling loop for %s", p.cfg.QueueURL)

	for {
		if ctx.Err() != nil {
			logger.CtxInfo(ctx, "SQS polling loop stopped")
			return nil
		}

		if _, err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				continue
			}
			logger.FromContext(ctx).WithError(err).Error("Failed to receive messages from SQS")
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.ErrorBackoff):
			}
		}
	}
}

// PollOnce performs one receive call and processes what it returned. It
// reports how many messages were handled successfully.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.cfg.QueueURL),
		MaxNumberOfMessages: p.cfg.MaxMessages,
		WaitTimeSeconds:     p.cfg.WaitSeconds,
	}
	if p.cfg.VisibilityTimeout > 0 {
		in.VisibilityTimeout = p.cfg.VisibilityTimeout
	}

	out, err := p.client.ReceiveMessage(ctx, in)
	if err != nil {
		return 0, err
	}
	if len(out.Messages) == 0 {
		return 0, nil
	}
	return p.process(ctx, out.Messages), nil
}

func (p *Poller) process(ctx context.Context, messages []types.Message) int {
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	results := make([]bool, len(messages))
	for i, msg := range messages {
		g.Go(func() error {
			results[i] = p.handle(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	handled := 0
	for _, ok := range results {
		if ok {
			handled++
		}
	}
	return handled
}

func (p *Poller) handle(ctx context.Context, msg types.Message) bool {
	msgCtx := logger.WithField(ctx, "message_id", aws.ToString(msg.MessageId))
	if msg.Body == nil {
		logger.CtxWarn(msgCtx, "Received SQS message with nil body, deleting")
		p.delete(msgCtx, msg)
		return false
	}

	if p.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		msgCtx, cancel = context.WithTimeout(msgCtx, p.cfg.HandlerTimeout)
		defer cancel()
	}

	if err := p.handler(msgCtx, []byte(*msg.Body)); err != nil {
		logger.FromContext(msgCtx).WithError(err).Error("Message handler failed, leaving message for redelivery")
		return false
	}

	p.delete(ctx, msg)
	return true
}

func (p *Poller) delete(ctx context.Context, msg types.Message) {
	_, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.cfg.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to delete SQS message")
	}
}
