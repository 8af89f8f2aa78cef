// Package customers keeps the customer master that sales orders reference.
package customers

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

var (
	ErrCustomerNotFound  = shared.NotFound("CUSTOMER_NOT_FOUND", "customer not found")
	ErrDuplicateCustomer = shared.Conflict("DUPLICATE_CUSTOMER_CODE", "customer code already exists")
)

// Customer is a party sales orders are shipped to.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"-"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Country   string    `json:"country"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRequest is the POST body of a customer.
type CreateRequest struct {
	Code    string  `json:"code" validate:"required,max=40"`
	Name    string  `json:"name" validate:"required,max=200"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Country string  `json:"country" validate:"omitempty,len=2"`
}

// ListFilter narrows List.
type ListFilter struct {
	Search string
	Page   shared.Page
}
