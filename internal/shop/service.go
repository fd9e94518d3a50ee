// Package shop binds the storefront REST endpoints to the query cache:
// each read declares the tags it provides, each write the tags it
// invalidates. This declaration pair is the correctness mechanism that
// keeps the client from showing stale data after a write.
package shop

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/api"
	"github.com/merchkit/shopfront/internal/query"
	"github.com/merchkit/shopfront/internal/session"
)

// none is the argument type for queries with no parameters.
type none struct{}

// Service is the typed endpoint layer over the dispatcher and cache.
type Service struct {
	api     *api.Client
	cache   *query.Store
	session *session.Session

	products   query.Query[shopfront.ProductFilter, query.Page[shopfront.Product]]
	product    query.Query[string, shopfront.Product]
	cart       query.Query[none, shopfront.Cart]
	orders     query.Query[int, query.Page[shopfront.Order]]
	order      query.Query[string, shopfront.Order]
	me         query.Query[none, shopfront.User]
	segments   query.Query[none, []shopfront.Segment]
	recMetrics query.Query[none, shopfront.RecommendationMetrics]
	training   query.Query[none, shopfront.TrainingStatus]
}

// New wires the endpoint layer. It also installs itself as the client's
// token refresher and purges the cache whenever the session clears, so a
// logout (explicit or refresh-failure) never leaves user data behind.
func New(client *api.Client, cache *query.Store, sess *session.Session) *Service {
	s := &Service{api: client, cache: cache, session: sess}
	client.SetRefresher(s)
	sess.OnClear(cache.PurgeAll)

	unitKey := func(none) string { return "" }

	s.products = query.Query[shopfront.ProductFilter, query.Page[shopfront.Product]]{
		Name:     "products",
		Provides: query.Tags(query.TagProduct),
		// Page is deliberately excluded: all pages of one filter/sort
		// combination accumulate in a single entry.
		Key: func(f shopfront.ProductFilter) string {
			return fmt.Sprintf("category=%s&search=%s&sort=%s&min=%s&max=%s&size=%d",
				f.Category, f.Search, f.Sort,
				strconv.FormatFloat(f.MinPrice, 'f', -1, 64),
				strconv.FormatFloat(f.MaxPrice, 'f', -1, 64),
				f.PageSize)
		},
		Fetch: func(ctx context.Context, f shopfront.ProductFilter) (query.Page[shopfront.Product], error) {
			var page query.Page[shopfront.Product]
			err := s.api.Do(ctx, http.MethodGet, "/products", f.Query(), nil, &page)
			return page, err
		},
		Merge: func(cached, fresh query.Page[shopfront.Product], f shopfront.ProductFilter) query.Page[shopfront.Product] {
			return query.MergePages(cached, fresh, f.Page)
		},
		Reset: func(f shopfront.ProductFilter) shopfront.ProductFilter {
			f.Page = 1
			return f
		},
	}

	s.product = query.Query[string, shopfront.Product]{
		Name:     "product",
		Provides: query.Tags(query.TagProduct),
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (shopfront.Product, error) {
			var p shopfront.Product
			err := s.api.Do(ctx, http.MethodGet, "/products/"+id, nil, nil, &p)
			return p, err
		},
	}

	s.cart = query.Query[none, shopfront.Cart]{
		Name:     "cart",
		Provides: query.Tags(query.TagCart),
		Key:      unitKey,
		Fetch: func(ctx context.Context, _ none) (shopfront.Cart, error) {
			var c shopfront.Cart
			err := s.api.Do(ctx, http.MethodGet, "/cart", nil, nil, &c)
			return c, err
		},
	}

	s.orders = query.Query[int, query.Page[shopfront.Order]]{
		Name:     "orders",
		Provides: query.Tags(query.TagOrder),
		Key:      func(int) string { return "" },
		Fetch: func(ctx context.Context, page int) (query.Page[shopfront.Order], error) {
			if page < 1 {
				page = 1
			}
			var out query.Page[shopfront.Order]
			q := map[string][]string{"page": {strconv.Itoa(page)}}
			err := s.api.Do(ctx, http.MethodGet, "/orders", q, nil, &out)
			return out, err
		},
		Merge: query.MergePages[shopfront.Order],
		Reset: func(int) int { return 1 },
	}

	s.order = query.Query[string, shopfront.Order]{
		Name:     "order",
		Provides: query.Tags(query.TagOrder),
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (shopfront.Order, error) {
			var o shopfront.Order
			err := s.api.Do(ctx, http.MethodGet, "/orders/"+id, nil, nil, &o)
			return o, err
		},
	}

	s.me = query.Query[none, shopfront.User]{
		Name:     "me",
		Provides: query.Tags(query.TagUser),
		Key:      unitKey,
		Fetch: func(ctx context.Context, _ none) (shopfront.User, error) {
			var u shopfront.User
			err := s.api.Do(ctx, http.MethodGet, "/auth/me", nil, nil, &u)
			return u, err
		},
	}

	s.segments = query.Query[none, []shopfront.Segment]{
		Name:     "segments",
		Provides: query.Tags(query.TagSegment, query.TagAnalytics),
		Key:      unitKey,
		Fetch: func(ctx context.Context, _ none) ([]shopfront.Segment, error) {
			var out []shopfront.Segment
			err := s.api.Do(ctx, http.MethodGet, "/admin/segments", nil, nil, &out)
			return out, err
		},
	}

	s.recMetrics = query.Query[none, shopfront.RecommendationMetrics]{
		Name:     "recommendation_metrics",
		Provides: query.Tags(query.TagAnalytics),
		Key:      unitKey,
		Fetch: func(ctx context.Context, _ none) (shopfront.RecommendationMetrics, error) {
			var m shopfront.RecommendationMetrics
			err := s.api.Do(ctx, http.MethodGet, "/admin/recommendations/metrics", nil, nil, &m)
			return m, err
		},
	}

	s.training = query.Query[none, shopfront.TrainingStatus]{
		Name:     "training_status",
		Provides: query.Tags(query.TagAnalytics),
		Key:      unitKey,
		Fetch: func(ctx context.Context, _ none) (shopfront.TrainingStatus, error) {
			var t shopfront.TrainingStatus
			err := s.api.Do(ctx, http.MethodGet, "/admin/training/status", nil, nil, &t)
			return t, err
		},
	}

	return s
}

// --- Queries ---

// Products subscribes to the catalog list for the given filter. All pages
// of one filter share a cache entry; page 1 replaces, later pages append.
func (s *Service) Products(ctx context.Context, f shopfront.ProductFilter) *query.Subscription[query.Page[shopfront.Product]] {
	return query.Subscribe(ctx, s.cache, s.products, f)
}

// FetchProducts fetches one page and detaches.
func (s *Service) FetchProducts(ctx context.Context, f shopfront.ProductFilter) (query.Page[shopfront.Product], error) {
	return query.FetchOnce(ctx, s.cache, s.products, f)
}

// Product subscribes to a single product.
func (s *Service) Product(ctx context.Context, id string) *query.Subscription[shopfront.Product] {
	return query.Subscribe(ctx, s.cache, s.product, id)
}

// FetchProduct fetches a single product and detaches.
func (s *Service) FetchProduct(ctx context.Context, id string) (shopfront.Product, error) {
	return query.FetchOnce(ctx, s.cache, s.product, id)
}

// Cart subscribes to the user's cart.
func (s *Service) Cart(ctx context.Context) *query.Subscription[shopfront.Cart] {
	return query.Subscribe(ctx, s.cache, s.cart, none{})
}

// FetchCart fetches the cart and detaches.
func (s *Service) FetchCart(ctx context.Context) (shopfront.Cart, error) {
	return query.FetchOnce(ctx, s.cache, s.cart, none{})
}

// Orders subscribes to the order list.
func (s *Service) Orders(ctx context.Context, page int) *query.Subscription[query.Page[shopfront.Order]] {
	return query.Subscribe(ctx, s.cache, s.orders, page)
}

// FetchOrders fetches one order page and detaches.
func (s *Service) FetchOrders(ctx context.Context, page int) (query.Page[shopfront.Order], error) {
	return query.FetchOnce(ctx, s.cache, s.orders, page)
}

// FetchOrder fetches a single order and detaches.
func (s *Service) FetchOrder(ctx context.Context, id string) (shopfront.Order, error) {
	return query.FetchOnce(ctx, s.cache, s.order, id)
}

// FetchMe fetches the authenticated user snapshot and detaches.
func (s *Service) FetchMe(ctx context.Context) (shopfront.User, error) {
	return query.FetchOnce(ctx, s.cache, s.me, none{})
}

// FetchSegments fetches the admin user segments and detaches.
func (s *Service) FetchSegments(ctx context.Context) ([]shopfront.Segment, error) {
	return query.FetchOnce(ctx, s.cache, s.segments, none{})
}

// FetchRecommendationMetrics fetches model evaluation metrics and detaches.
func (s *Service) FetchRecommendationMetrics(ctx context.Context) (shopfront.RecommendationMetrics, error) {
	return query.FetchOnce(ctx, s.cache, s.recMetrics, none{})
}

// TrainingStatus subscribes to the ML training status.
func (s *Service) TrainingStatus(ctx context.Context) *query.Subscription[shopfront.TrainingStatus] {
	return query.Subscribe(ctx, s.cache, s.training, none{})
}

// FetchTrainingStatus fetches the training status and detaches.
func (s *Service) FetchTrainingStatus(ctx context.Context) (shopfront.TrainingStatus, error) {
	return query.FetchOnce(ctx, s.cache, s.training, none{})
}
