package sponsored

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client())
}

func TestSearch_BareArray(t *testing.T) {
	t.Parallel()
	c := serve(t, http.StatusOK,
		`[{"product_id":"p-1","title":"Widget","bid":0.4},{"product_id":"p-2","title":"Gadget","bid":0.2}]`)
	got, err := c.Search(context.Background(), "widget")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ProductID != "p-1" || got[0].Bid != 0.4 {
		t.Errorf("placements = %+v", got)
	}
}

func TestSearch_WrappedResults(t *testing.T) {
	t.Parallel()
	c := serve(t, http.StatusOK,
		`{"query":"widget","results":[{"product_id":"p-9","title":"Widget Pro","image_url":"/w.png"}]}`)
	got, err := c.Search(context.Background(), "widget")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ProductID != "p-9" || got[0].ImageURL != "/w.png" {
		t.Errorf("placements = %+v", got)
	}
}

func TestSearch_ToleratedFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"malformed json", http.StatusOK, `{"results": "oops"`},
		{"object without results", http.StatusOK, `{"count": 3}`},
		{"string body", http.StatusOK, `"nothing"`},
		{"server error", http.StatusInternalServerError, `{"detail":"down"}`},
		{"not found", http.StatusNotFound, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := serve(t, tt.status, tt.body)
			got, err := c.Search(context.Background(), "x")
			if err != nil {
				t.Fatalf("sponsored failures must be silent: %v", err)
			}
			if got != nil {
				t.Errorf("placements = %+v, want nil", got)
			}
		})
	}
}

func TestSearch_SkipsNonObjectElements(t *testing.T) {
	t.Parallel()
	c := serve(t, http.StatusOK, `[{"product_id":"p-1","title":"A"}, 42, "junk"]`)
	got, err := c.Search(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ProductID != "p-1" {
		t.Errorf("placements = %+v", got)
	}
}
