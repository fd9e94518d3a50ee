package session

import "net/http"

// Transport is an http.RoundTripper that attaches the session's current
// access token as a bearer credential on every outbound request. The token
// is read at request time, so a refresh mid-flight is picked up by the
// replayed request without rebuilding the client.
type Transport struct {
	Session *Session
	Base    http.RoundTripper
}

// RoundTrip clones the request and sets the Authorization header when a
// token is present. Logged-out requests go out without the header.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	token := t.Session.AccessToken()
	if token == "" {
		return t.base().RoundTrip(r)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+token)
	return t.base().RoundTrip(r2)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
