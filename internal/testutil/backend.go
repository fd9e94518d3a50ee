// Package testutil provides configurable test fakes for the storefront client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	shopfront "github.com/merchkit/shopfront/internal"
)

// Backend is a fake storefront API for httptest. Zero value is usable;
// populate Products and tokens as the test needs.
type Backend struct {
	mu sync.Mutex

	Products []shopfront.Product
	Cart     shopfront.Cart
	Orders   []shopfront.Order
	User     shopfront.User

	// ValidToken is the access token the backend accepts. Empty disables
	// auth checks entirely.
	ValidToken string
	// RefreshToken is the refresh token accepted by /auth/refresh.
	RefreshToken string
	// NextToken is the access token issued by a successful refresh; it
	// becomes the new ValidToken.
	NextToken string
	// FailRefresh makes /auth/refresh return 401.
	FailRefresh bool

	// Call counters by endpoint name.
	calls map[string]int
}

// Calls returns how many times the named endpoint was hit.
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *Backend) count(name string) {
	if b.calls == nil {
		b.calls = make(map[string]int)
	}
	b.calls[name]++
}

// authorized checks the bearer token. Callers hold b.mu.
func (b *Backend) authorized(r *http.Request) bool {
	if b.ValidToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+b.ValidToken
}

// Handler returns the fake API as an http.Handler.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", b.handleProducts)
	mux.HandleFunc("GET /products/{id}", b.handleProduct)
	mux.HandleFunc("GET /cart", b.handleCart)
	mux.HandleFunc("POST /cart/items", b.handleAddToCart)
	mux.HandleFunc("GET /orders", b.handleOrders)
	mux.HandleFunc("POST /orders", b.handleCheckout)
	mux.HandleFunc("POST /auth/login", b.handleLogin)
	mux.HandleFunc("POST /auth/refresh", b.handleRefresh)
	mux.HandleFunc("POST /auth/logout", b.handleLogout)
	mux.HandleFunc("GET /auth/me", b.handleMe)
	return mux
}

func (b *Backend) handleProducts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("products")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size < 1 {
		size = 20
	}

	items := b.Products
	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := make([]shopfront.Product, 0, len(items))
		for _, p := range items {
			if p.Category == cat {
				filtered = append(filtered, p)
			}
		}
		items = filtered
	}

	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := min(start+size, len(items))
	totalPages := (len(items) + size - 1) / size

	writeJSON(w, http.StatusOK, map[string]any{
		"items":       items[start:end],
		"page":        page,
		"total_pages": totalPages,
		"total_count": len(items),
	})
}

func (b *Backend) handleProduct(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("product")
	id := r.PathValue("id")
	for _, p := range b.Products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "product not found"})
}

func (b *Backend) handleCart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("cart")
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
		return
	}
	writeJSON(w, http.StatusOK, b.Cart)
}

func (b *Backend) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("add_to_cart")
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
		return
	}
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad payload"})
		return
	}
	name := req.ProductID
	var price float64
	for _, p := range b.Products {
		if p.ID == req.ProductID {
			name, price = p.Name, p.Price
		}
	}
	b.Cart.Items = append(b.Cart.Items, shopfront.CartItem{
		ProductID: req.ProductID, Name: name, UnitPrice: price, Quantity: req.Quantity,
	})
	b.Cart.Total += price * float64(req.Quantity)
	writeJSON(w, http.StatusOK, b.Cart)
}

func (b *Backend) handleOrders(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("orders")
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       b.Orders,
		"page":        1,
		"total_pages": 1,
		"total_count": len(b.Orders),
	})
}

func (b *Backend) handleCheckout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("checkout")
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
		return
	}
	var req shopfront.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing idempotency key"})
		return
	}
	order := shopfront.Order{
		ID:     fmt.Sprintf("order-%d", len(b.Orders)+1),
		Status: "pending",
		Total:  b.Cart.Total,
	}
	for _, it := range b.Cart.Items {
		order.Items = append(order.Items, shopfront.OrderItem(it))
	}
	b.Orders = append(b.Orders, order)
	b.Cart = shopfront.Cart{}
	writeJSON(w, http.StatusCreated, order)
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("login")
	var creds shopfront.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  b.ValidToken,
		"refresh_token": b.RefreshToken,
		"user":          b.User,
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("refresh")
	if b.FailRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "refresh token revoked"})
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken != b.RefreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "bad refresh token"})
		return
	}
	if b.NextToken != "" {
		b.ValidToken = b.NextToken
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": b.ValidToken})
}

func (b *Backend) handleLogout(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("logout")
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("me")
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
		return
	}
	writeJSON(w, http.StatusOK, b.User)
}

// SeedProducts returns n products across the given categories, round robin.
func SeedProducts(n int, categories ...string) []shopfront.Product {
	if len(categories) == 0 {
		categories = []string{"electronics"}
	}
	out := make([]shopfront.Product, n)
	for i := range out {
		out[i] = shopfront.Product{
			ID:       fmt.Sprintf("p-%03d", i+1),
			Name:     fmt.Sprintf("Product %d", i+1),
			Category: categories[i%len(categories)],
			Price:    float64(10 + i),
			InStock:  true,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
