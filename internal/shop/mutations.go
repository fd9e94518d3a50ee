package shop

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/query"
)

// cartItemRequest is the payload for cart line mutations.
type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds a product to the cart and invalidates Cart, so any
// subscribed cart view refetches without an explicit call.
func (s *Service) AddToCart(ctx context.Context, productID string, quantity int) (shopfront.Cart, error) {
	m := query.Mutation[cartItemRequest, shopfront.Cart]{
		Name:        "add_to_cart",
		Invalidates: query.Tags(query.TagCart),
		Execute: func(ctx context.Context, req cartItemRequest) (shopfront.Cart, error) {
			var c shopfront.Cart
			err := s.api.Do(ctx, http.MethodPost, "/cart/items", nil, req, &c)
			return c, err
		},
	}
	return query.Run(ctx, s.cache, m, cartItemRequest{ProductID: productID, Quantity: quantity})
}

// SetCartQuantity sets a cart line's quantity.
func (s *Service) SetCartQuantity(ctx context.Context, productID string, quantity int) (shopfront.Cart, error) {
	m := query.Mutation[cartItemRequest, shopfront.Cart]{
		Name:        "set_cart_quantity",
		Invalidates: query.Tags(query.TagCart),
		Execute: func(ctx context.Context, req cartItemRequest) (shopfront.Cart, error) {
			var c shopfront.Cart
			err := s.api.Do(ctx, http.MethodPut, "/cart/items/"+req.ProductID, nil, req, &c)
			return c, err
		},
	}
	return query.Run(ctx, s.cache, m, cartItemRequest{ProductID: productID, Quantity: quantity})
}

// RemoveFromCart deletes a cart line.
func (s *Service) RemoveFromCart(ctx context.Context, productID string) error {
	m := query.Mutation[string, struct{}]{
		Name:        "remove_from_cart",
		Invalidates: query.Tags(query.TagCart),
		Execute: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodDelete, "/cart/items/"+id, nil, nil, nil)
		},
	}
	_, err := query.Run(ctx, s.cache, m, productID)
	return err
}

// Checkout places an order from the current cart. The idempotency key is
// generated here when absent, so a replayed request after a token refresh
// cannot double-submit the order. Invalidates Order and Cart: placing an
// order empties the cart server-side.
func (s *Service) Checkout(ctx context.Context, req shopfront.CheckoutRequest) (shopfront.Order, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.Must(uuid.NewV7()).String()
	}
	m := query.Mutation[shopfront.CheckoutRequest, shopfront.Order]{
		Name:        "checkout",
		Invalidates: query.Tags(query.TagOrder, query.TagCart),
		Execute: func(ctx context.Context, req shopfront.CheckoutRequest) (shopfront.Order, error) {
			var o shopfront.Order
			err := s.api.Do(ctx, http.MethodPost, "/orders", nil, req, &o)
			return o, err
		},
	}
	return query.Run(ctx, s.cache, m, req)
}

// CancelOrder cancels an order.
func (s *Service) CancelOrder(ctx context.Context, id string) (shopfront.Order, error) {
	m := query.Mutation[string, shopfront.Order]{
		Name:        "cancel_order",
		Invalidates: query.Tags(query.TagOrder),
		Execute: func(ctx context.Context, id string) (shopfront.Order, error) {
			var o shopfront.Order
			err := s.api.Do(ctx, http.MethodPost, "/orders/"+id+"/cancel", nil, nil, &o)
			return o, err
		},
	}
	return query.Run(ctx, s.cache, m, id)
}

// StartTraining triggers an ML training run on the recommendation backend.
func (s *Service) StartTraining(ctx context.Context) (shopfront.TrainingStatus, error) {
	m := query.Mutation[struct{}, shopfront.TrainingStatus]{
		Name:        "start_training",
		Invalidates: query.Tags(query.TagAnalytics),
		Execute: func(ctx context.Context, _ struct{}) (shopfront.TrainingStatus, error) {
			var t shopfront.TrainingStatus
			err := s.api.Do(ctx, http.MethodPost, "/admin/training/run", nil, nil, &t)
			return t, err
		},
	}
	return query.Run(ctx, s.cache, m, struct{}{})
}

// UploadProductImage uploads a product image as multipart form data and
// invalidates Product so catalog views pick up the new image URL.
func (s *Service) UploadProductImage(ctx context.Context, productID, filename string, content io.Reader) (shopfront.Product, error) {
	var p shopfront.Product
	err := s.api.Upload(ctx, "/products/"+productID+"/image", "image", filename, content, nil, &p)
	if err != nil {
		return p, err
	}
	s.cache.Invalidate(ctx, query.Tags(query.TagProduct))
	return p, nil
}
