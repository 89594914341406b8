package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefrontapp/storefront/internal/models"
)

const orderColumns = `id, order_number, user_id, customer_email, customer_name, items,
	items_price, shipping_price, tax_price, total_price, currency, payment_method,
	is_paid, payment_intent_id, payment_id, status, shipping_address,
	created_at, paid_at, shipped_at, delivered_at, cancelled_at`

type OrderStore struct {
	pool *pgxpool.Pool
}

// PaymentRecord is what a verified payment writes onto an order.
type PaymentRecord struct {
	IntentID  string
	PaymentID string
	PaidAt    time.Time
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// CreatePending inserts a new unpaid order in processing. The insert only
// happens when every referenced product exists.
func (s *OrderStore) CreatePending(ctx context.Context, order *Order) error {
	if err := validateNewOrder(order); err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	productIDs := distinctProductIDs(order.Items)

	query := `
		INSERT INTO orders (
			user_id, customer_email, customer_name, items, items_price, shipping_price,
			tax_price, total_price, currency, payment_method, status, shipping_address
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'processing', $11
		WHERE (SELECT COUNT(*) FROM products WHERE id = ANY($12)) = $13
		RETURNING id, order_number, created_at
	`
	var number int64
	err = s.pool.QueryRow(ctx, query,
		order.UserID, order.CustomerEmail, order.CustomerName, itemsJSON,
		order.ItemsPrice, order.ShippingPrice, order.TaxPrice, order.TotalPrice,
		order.Currency, string(order.PaymentMethod), addressJSON,
		productIDs, len(productIDs),
	).Scan(&order.ID, &number, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: order references an unknown product", ErrValidation)
	}
	if err != nil {
		return err
	}

	order.OrderNumber = int(number)
	order.Status = models.StatusProcessing
	order.IsPaid = false
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return order, err
}

// MarkPaid records a payment with a single conditional update. It returns
// applied=false with the current order when the order was already paid, so
// concurrent and repeated calls observe the same paid state and only the first
// write sets paid_at.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, payment PaymentRecord) (*Order, bool, error) {
	paidAt := payment.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	query := `
		UPDATE orders
		SET is_paid = TRUE, paid_at = $2, payment_intent_id = $3, payment_id = $4
		WHERE id = $1 AND is_paid = FALSE AND status = 'processing'
		RETURNING ` + orderColumns
	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID, paidAt,
		nullableText(payment.IntentID), nullableText(payment.PaymentID)))
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	current, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if current.IsPaid {
		return current, false, nil
	}
	return nil, false, fmt.Errorf("%w: cannot pay an order in status %s", ErrInvalidTransition, current.Status)
}

// TransitionStatus moves an order to the target status when the state machine
// allows it from the row's current status.
func (s *OrderStore) TransitionStatus(ctx context.Context, orderID uuid.UUID, to OrderStatus) (*Order, error) {
	query, err := transitionStatement(to)
	if err != nil {
		return nil, err
	}

	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return nil, rejectedTransition(current, to)
}

func (s *OrderStore) ListForUser(ctx context.Context, userID string, page Page) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, order_number DESC LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, userID, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *OrderStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// ListRecent returns orders across all users, newest first.
func (s *OrderStore) ListRecent(ctx context.Context, page Page) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		ORDER BY created_at DESC, order_number DESC LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *OrderStore) CountAll(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	return count, err
}

func validateNewOrder(order *Order) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrValidation)
	}
	if strings.TrimSpace(order.UserID) == "" {
		return fmt.Errorf("%w: order owner is required", ErrValidation)
	}
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	for i, item := range order.Items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("%w: item %d has no product", ErrValidation, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price must be non-negative", ErrValidation, i)
		}
	}
	if err := order.ValidatePricing(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := order.ShippingAddress.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// transitionStatement builds the conditional update for a target status. The
// WHERE clause lists every source status the state machine allows, so a row
// that moved concurrently is simply not matched.
func transitionStatement(to OrderStatus) (string, error) {
	sources := models.TransitionSources(to)
	if len(sources) == 0 {
		return "", fmt.Errorf("%w: %s is not a transition target", ErrInvalidTransition, to)
	}

	quoted := make([]string, len(sources))
	for i, source := range sources {
		quoted[i] = "'" + string(source) + "'"
	}

	var set string
	guard := ""
	switch to {
	case models.StatusShipped:
		set = "shipped_at = NOW()"
		guard = " AND is_paid = TRUE"
	case models.StatusDelivered:
		set = "delivered_at = NOW()"
	case models.StatusCancelled:
		set = "cancelled_at = NOW()"
	default:
		return "", fmt.Errorf("%w: %s is not a transition target", ErrInvalidTransition, to)
	}

	return fmt.Sprintf(`
		UPDATE orders
		SET status = '%s', %s
		WHERE id = $1 AND status IN (%s)%s
		RETURNING %s`, to, set, strings.Join(quoted, ", "), guard, orderColumns), nil
}

func rejectedTransition(current *Order, to OrderStatus) error {
	if models.CanTransition(current.Status, to) && to == models.StatusShipped && !current.IsPaid {
		return fmt.Errorf("%w: order must be paid before it ships", ErrInvalidTransition)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

func distinctProductIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order                                       Order
		number                                      int64
		items, address                              []byte
		method, status                              string
		intentID, paymentID                         pgtype.Text
		paidAt, shippedAt, deliveredAt, cancelledAt pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID, &number, &order.UserID, &order.CustomerEmail, &order.CustomerName, &items,
		&order.ItemsPrice, &order.ShippingPrice, &order.TaxPrice, &order.TotalPrice,
		&order.Currency, &method, &order.IsPaid, &intentID, &paymentID, &status, &address,
		&order.CreatedAt, &paidAt, &shippedAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	order.OrderNumber = int(number)
	order.PaymentMethod = models.PaymentMethod(method)
	order.Status = models.OrderStatus(status)
	order.PaymentIntentID = intentID.String
	order.PaymentID = paymentID.String
	order.PaidAt = timestamp(paidAt)
	order.ShippedAt = timestamp(shippedAt)
	order.DeliveredAt = timestamp(deliveredAt)
	order.CancelledAt = timestamp(cancelledAt)

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}

	return &order, nil
}

func timestamp(value pgtype.Timestamptz) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return value.Time
}

func nullableText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
