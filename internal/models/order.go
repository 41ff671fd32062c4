package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductType identifies what the customer ordered
type ProductType string

const (
	ProductTypePasFoto ProductType = "pas_foto"
)

// OrderStatus represents where an order is in the shop's workflow
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order is a print order created from an upload
type Order struct {
	ID               uuid.UUID    `json:"id"`
	CustomerName     string       `json:"customer_name"`
	CustomerWhatsApp string       `json:"customer_whatsapp"`
	ProductType      ProductType  `json:"product_type"`
	PhotoURL         string       `json:"photo_url"`
	Status           OrderStatus  `json:"status"`
	BranchID         string       `json:"branch_id"`
	Details          OrderDetails `json:"details"`
	CreatedAt        time.Time    `json:"created_at"`
}

// OrderDetails holds the pas foto options and where the original photo lives
type OrderDetails struct {
	Background       string    `json:"background"`
	Size             string    `json:"size"`
	Quantity         int       `json:"quantity"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"file_path"`
	FileSize         int64     `json:"file_size"`
	UploadedAt       time.Time `json:"uploaded_at"`
}
