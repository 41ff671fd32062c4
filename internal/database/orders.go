package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benvon/pasfoto/internal/models"
	"github.com/google/uuid"
)

const (
	// DefaultListLimit is used when List gets a non-positive limit
	DefaultListLimit = 20
	// MaxListLimit caps List
	MaxListLimit = 500
)

// OrderRepositoryInterface is what the upload handler needs from order storage
type OrderRepositoryInterface interface {
	Create(ctx context.Context, order *models.Order) error
}

var _ OrderRepositoryInterface = (*OrderRepository)(nil)

// OrderRepository handles order database operations
type OrderRepository struct {
	db *DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts order, assigning an ID when it has none, and fills CreatedAt
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	detailsJSON, err := json.Marshal(order.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal order details: %w", err)
	}

	query := `
		INSERT INTO orders (id, customer_name, customer_whatsapp, product_type, photo_url, status, branch_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		order.ID,
		order.CustomerName,
		order.CustomerWhatsApp,
		order.ProductType,
		order.PhotoURL,
		order.Status,
		order.BranchID,
		detailsJSON,
	).Scan(&order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// List returns the most recent orders, newest first
func (r *OrderRepository) List(ctx context.Context, limit int) ([]*models.Order, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, customer_name, customer_whatsapp, product_type, photo_url, status, branch_id, details, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		var detailsJSON []byte
		if err := rows.Scan(
			&order.ID,
			&order.CustomerName,
			&order.CustomerWhatsApp,
			&order.ProductType,
			&order.PhotoURL,
			&order.Status,
			&order.BranchID,
			&detailsJSON,
			&order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &order.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details of order %s: %w", order.ID, err)
			}
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
