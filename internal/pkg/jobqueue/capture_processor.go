package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/app/repository"
	"github.com/medlemshub/medlemshub/internal/pkg/database"
	"github.com/medlemshub/medlemshub/internal/pkg/metrics/counter"
	"github.com/medlemshub/medlemshub/internal/pkg/payments"
)

// CaptureProcessor calls the wallet provider to capture authorized payments.
// Capture runs off the webhook path so a slow or failing provider API never
// delays the callback response.
type CaptureProcessor struct {
	queue    *Queue
	client   *payments.VippsClient
	payments repository.PaymentRepository
}

// NewCaptureProcessor wires the capture handler into the queue.
func NewCaptureProcessor(queue *Queue, client *payments.VippsClient, paymentRepo repository.PaymentRepository) *CaptureProcessor {
	p := &CaptureProcessor{
		queue:    queue,
		client:   client,
		payments: paymentRepo,
	}
	queue.RegisterHandler(JobTypeCaptureWallet, p.process)
	return p
}

// EnqueueCapture schedules a capture call for an authorized wallet payment.
func (p *CaptureProcessor) EnqueueCapture(reference string, amount decimal.Decimal) error {
	job, err := p.queue.EnqueueJob(JobTypeCaptureWallet, map[string]interface{}{
		"reference": reference,
		"amount":    amount.String(),
	})
	if err != nil {
		return err
	}
	log.Infof("[Capture] Enqueued capture job %s for %s", job.ID, reference)
	return nil
}

func (p *CaptureProcessor) process(ctx context.Context, job *Job) error {
	payload, err := ParseCaptureJobPayload(job)
	if err != nil {
		// A malformed payload never becomes valid; fail permanently.
		job.RetryCount = job.MaxRetries
		return fmt.Errorf("invalid capture payload: %w", err)
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		job.RetryCount = job.MaxRetries
		return fmt.Errorf("invalid capture amount %q: %w", payload.Amount, err)
	}

	if err := p.client.Capture(ctx, payload.Reference, amount); err != nil {
		if job.RetryCount+1 >= job.MaxRetries {
			p.reportFailure(payload.Reference, err)
		}
		return err
	}

	log.Infof("[Capture] Captured %s for %s", amount.String(), payload.Reference)
	return nil
}

// reportFailure records the permanent capture failure so an operator can
// follow up manually. The money is still authorized at the provider.
func (p *CaptureProcessor) reportFailure(reference string, captureErr error) {
	_ = counter.AddCaptureFailed(models.PaymentProviderVipps)

	payment, err := p.payments.GetByProviderReference(models.PaymentProviderVipps, reference)
	if err != nil || payment == nil {
		log.Errorf("[Capture] Capture of %s failed permanently and payment lookup failed too: %v", reference, captureErr)
		return
	}

	content := fmt.Sprintf("Capture of payment %s failed after %d attempts: %v", reference, DefaultMaxRetries, captureErr)
	if nerr := models.CreateNotification(
		database.GetDB(),
		payment.OrganizationID,
		models.NotificationTypeCaptureFailed,
		content,
		payment.ID,
	); nerr != nil {
		log.Errorf("[Capture] Could not record capture failure notification for %s: %v", reference, nerr)
	}
}
