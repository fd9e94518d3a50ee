// Package shopfront defines domain types shared across the storefront client.
// This package has no project imports -- it is the dependency root.
package shopfront

import (
	"net/url"
	"strconv"
	"time"
)

// --- Catalog ---

// Product is a single catalog item as returned by the backend.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category"`
	Brand       string  `json:"brand,omitempty"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	InStock     bool    `json:"in_stock"`
}

// ProductFilter is the argument set for catalog list queries.
// All fields except Page participate in cache identity; Page selects
// which slice of one logical result set to fetch.
type ProductFilter struct {
	Category string
	Search   string
	Sort     string // "price_asc", "price_desc", "rating", "newest"
	MinPrice float64
	MaxPrice float64
	Page     int
	PageSize int
}

// Query encodes the filter as URL query parameters for the backend.
func (f ProductFilter) Query() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.MinPrice > 0 {
		q.Set("min_price", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		q.Set("max_price", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	size := f.PageSize
	if size < 1 {
		size = 20
	}
	q.Set("page_size", strconv.Itoa(size))
	return q
}

// --- Cart ---

// CartItem is a single line in the cart.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Cart is the authenticated user's cart snapshot.
type Cart struct {
	Items     []CartItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	Discount  float64    `json:"discount,omitempty"`
	Total     float64    `json:"total"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// --- Orders ---

// OrderItem is a purchased line item frozen at checkout time.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Order is a placed order.
type Order struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"` // "pending", "paid", "shipped", "delivered", "cancelled"
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
}

// CheckoutRequest is the payload for placing an order.
type CheckoutRequest struct {
	IdempotencyKey  string `json:"idempotency_key"`
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

// --- Auth ---

// User is the authenticated user snapshot held by the session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"` // "customer", "admin"
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthTokens is the token pair issued by login and refresh.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// --- Admin analytics ---

// Segment is a user segment computed by the recommendation backend.
type Segment struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Size  int     `json:"size"`
	Share float64 `json:"share"`
}

// RecommendationMetrics summarizes the serving model's offline evaluation.
type RecommendationMetrics struct {
	ModelVersion string    `json:"model_version"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	CTR          float64   `json:"ctr"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// TrainingStatus reports the state of an ML training run.
type TrainingStatus struct {
	State      string     `json:"state"` // "idle", "running", "failed", "complete"
	Progress   float64    `json:"progress"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
