package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/storefrontapp/storefront/internal/email"
	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/observability"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	jobTimeout       = 30 * time.Second
)

type pusher interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) error
}

type targets interface {
	Subscriptions(ctx context.Context) ([]models.PushSubscription, error)
	Hub() *Hub
}

type jobKind string

const (
	jobNewOrder        jobKind = "new_order"
	jobPaymentReceived jobKind = "payment_received"
	jobStatusChanged   jobKind = "status_changed"
)

type job struct {
	ctx   context.Context
	kind  jobKind
	order models.Order
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	StoreName string
	StoreURL  string
}

// Dispatcher runs notification jobs on a fixed pool of workers. Enqueueing
// never blocks; delivery failures are logged and counted.
type Dispatcher struct {
	targets  targets
	push     pusher
	mail     email.Provider
	renderer *email.Renderer
	cfg      DispatcherConfig
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts the workers. push and mail may be nil to disable the
// channel.
func NewDispatcher(cfg DispatcherConfig, targets targets, push pusher, mail email.Provider, logger *slog.Logger) (*Dispatcher, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = logging.Discard()
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	d := &Dispatcher{
		targets:  targets,
		push:     push,
		mail:     mail,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.With("component", "notify_dispatcher"),
		now:      time.Now,
		jobs:     make(chan job, cfg.QueueSize),
	}

	for i := 1; i <= cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d, nil
}

// NotifyNewOrder pushes the order summary to every admin device and socket.
func (d *Dispatcher) NotifyNewOrder(ctx context.Context, order *models.Order) {
	d.enqueue(ctx, jobNewOrder, order)
}

// NotifyPaymentReceived emails the customer a payment confirmation and tells
// connected admins.
func (d *Dispatcher) NotifyPaymentReceived(ctx context.Context, order *models.Order) {
	d.enqueue(ctx, jobPaymentReceived, order)
}

// NotifyStatusChanged emails the customer about shipping, delivery or
// cancellation and tells connected admins.
func (d *Dispatcher) NotifyStatusChanged(ctx context.Context, order *models.Order) {
	d.enqueue(ctx, jobStatusChanged, order)
}

func (d *Dispatcher) enqueue(ctx context.Context, kind jobKind, order *models.Order) {
	if order == nil {
		return
	}
	logger := logging.FromContext(ctx, d.logger)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		logger.Warn("notification dropped after shutdown", "kind", kind, "order_id", order.ID)
		observability.CountReason(ctx, "notify.delivery.failed", "closed")
		return
	}

	select {
	case d.jobs <- job{ctx: logging.Detach(ctx, d.logger), kind: kind, order: *order}:
	default:
		logger.Warn("notification queue full, dropping job", "kind", kind, "order_id", order.ID)
		observability.CountReason(ctx, "notify.delivery.failed", "queue_full")
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		d.run(id, j)
	}
}

func (d *Dispatcher) run(workerID int, j job) {
	ctx, cancel := context.WithTimeout(j.ctx, jobTimeout)
	defer cancel()

	span := sentry.StartSpan(ctx, "notify.dispatch",
		sentry.WithOpName("notify.dispatch"),
		sentry.WithDescription(string(j.kind)),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	ctx, logger := logging.With(ctx, d.logger, "worker", workerID, "kind", j.kind, "order_id", j.order.ID)

	switch j.kind {
	case jobNewOrder:
		d.deliverNewOrder(ctx, &j.order)
	case jobPaymentReceived:
		d.broadcast(ctx, EventOrderPaid, j.order.Summary())
		d.sendEmail(ctx, email.TemplatePaymentReceived, &j.order, j.order.PaidAt)
	case jobStatusChanged:
		d.broadcast(ctx, EventOrderUpdated, j.order.Summary())
		if template, when, ok := statusTemplate(&j.order); ok {
			d.sendEmail(ctx, template, &j.order, when)
		}
	default:
		logger.Error("unknown notification job")
	}
}

func (d *Dispatcher) deliverNewOrder(ctx context.Context, order *models.Order) {
	logger := logging.FromContext(ctx, d.logger)
	summary := order.Summary()

	d.broadcast(ctx, EventNewOrder, summary)

	if d.push == nil || d.targets == nil {
		return
	}

	subs, err := d.targets.Subscriptions(ctx)
	if err != nil {
		// List still returns the subscriptions it could open.
		logger.Error("failed to load some push subscriptions", "error", err)
		observability.CountReason(ctx, "notify.delivery.failed", "subscriptions")
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(newOrderPush(summary))
	if err != nil {
		logger.Error("failed to encode push payload", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub models.PushSubscription) {
			defer wg.Done()
			if err := d.push.Send(ctx, sub, payload); err != nil {
				reason := "push"
				if errors.Is(err, ErrSubscriptionGone) {
					reason = "push_gone"
				}
				logger.Warn("push delivery failed", "subscription_id", sub.ID, "user_id", sub.UserID, "error", err)
				observability.CountReason(ctx, "notify.delivery.failed", reason)
			}
		}(sub)
	}
	wg.Wait()
}

// PushMessage is the web push payload: display text for the notification plus
// the order summary for the client.
type PushMessage struct {
	Type  string              `json:"type"`
	Title string              `json:"title"`
	Body  string              `json:"body"`
	Data  models.OrderSummary `json:"data"`
}

func newOrderPush(summary models.OrderSummary) PushMessage {
	purchaser := summary.CustomerName
	if purchaser == "" {
		purchaser = summary.CustomerEmail
	}
	items := "1 item"
	if summary.ItemCount != 1 {
		items = fmt.Sprintf("%d items", summary.ItemCount)
	}
	return PushMessage{
		Type:  EventNewOrder,
		Title: fmt.Sprintf("New order #%d", summary.OrderNumber),
		Body:  fmt.Sprintf("%s ordered %s for %s", purchaser, items, email.FormatAmount(summary.TotalPrice, summary.Currency)),
		Data:  summary,
	}
}

func (d *Dispatcher) broadcast(ctx context.Context, event string, payload any) {
	if d.targets == nil || d.targets.Hub() == nil {
		return
	}
	d.targets.Hub().Broadcast(ctx, event, payload)
}

func (d *Dispatcher) sendEmail(ctx context.Context, template string, order *models.Order, when time.Time) {
	if d.mail == nil || order.CustomerEmail == "" {
		return
	}
	logger := logging.FromContext(ctx, d.logger)

	if when.IsZero() {
		when = d.now()
	}
	msg, err := d.renderer.Render(template, email.BuildOrderInfo(order, d.cfg.StoreName, d.cfg.StoreURL, when))
	if err != nil {
		logger.Error("failed to render order email", "template", template, "error", err)
		observability.CountReason(ctx, "notify.delivery.failed", "email_render")
		return
	}
	if err := d.mail.SendEmail(ctx, msg); err != nil {
		logger.Warn("failed to send order email", "template", template, "error", err)
		observability.CountReason(ctx, "notify.delivery.failed", "email")
		return
	}
	logger.Info("order email sent", "template", template)
}

func statusTemplate(order *models.Order) (string, time.Time, bool) {
	switch order.Status {
	case models.StatusShipped:
		return email.TemplateOrderShipped, order.ShippedAt, true
	case models.StatusDelivered:
		return email.TemplateOrderDelivered, order.DeliveredAt, true
	case models.StatusCancelled:
		return email.TemplateOrderCancelled, order.CancelledAt, true
	default:
		return "", time.Time{}, false
	}
}

// Close stops accepting jobs and waits for queued ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification queue not drained: %w", ctx.Err())
	}
}
