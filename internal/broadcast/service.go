package broadcast

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/evolv-devices/storefront-backend/pkg/logger"
	"github.com/evolv-devices/storefront-backend/pkg/mailer"
	"github.com/evolv-devices/storefront-backend/pkg/metrics"
)

// Sender delivers one templated email.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Recipient is one fan-out target.
type Recipient struct {
	Email string
	Name  string
}

// Content is the shared template applied to every recipient.
type Content struct {
	TemplateID string
	Payload    map[string]any
}

// Result reports the fan-out tally. Per-item failures never abort the run.
type Result struct {
	SuccessCount int64
	FailureCount int64
}

// Service fans a notification out to many recipients over a bounded worker
// pool. Fire-and-forget: nothing survives a restart.
type Service struct {
	sender  Sender
	workers int
	metrics *metrics.PaymentMetrics
	logger  *logger.Logger
}

// NewService wires the fan-out with a bounded worker count.
func NewService(sender Sender, workers int, pm *metrics.PaymentMetrics, logg *logger.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{sender: sender, workers: workers, metrics: pm, logger: logg}
}

// Broadcast sends the content to every recipient. A recipient without an
// email counts as a failure; nothing short-circuits the rest.
func (s *Service) Broadcast(ctx context.Context, recipients []Recipient, content Content) (*Result, error) {
	var success, failure atomic.Int64

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	for _, recipient := range recipients {
		recipient := recipient
		group.Go(func() error {
			if strings.TrimSpace(recipient.Email) == "" {
				failure.Add(1)
				s.metrics.IncBroadcast("failure")
				return nil
			}
			msg := mailer.Message{
				ToEmail:    recipient.Email,
				ToName:     recipient.Name,
				TemplateID: content.TemplateID,
				Payload:    content.Payload,
			}
			if err := s.sender.Send(ctx, msg); err != nil {
				failure.Add(1)
				s.metrics.IncBroadcast("failure")
				s.logError(ctx, "broadcast send failed", err)
				return nil
			}
			success.Add(1)
			s.metrics.IncBroadcast("success")
			return nil
		})
	}

	// Workers never return errors; Wait is only a join point.
	_ = group.Wait()

	return &Result{
		SuccessCount: success.Load(),
		FailureCount: failure.Load(),
	}, nil
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error(ctx, msg, err)
}
