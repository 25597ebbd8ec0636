package cloudflare

import (
	"context"
	"net/http"
)

type statusKey struct{}

// statusTransport stores the status of each response in the *int carried by
// the request context, if any. The client's typed errors do not expose it.
type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		if code, ok := req.Context().Value(statusKey{}).(*int); ok {
			*code = resp.StatusCode
		}
	}
	return resp, err
}

func recordStatus(hc *http.Client) *http.Client {
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &statusTransport{next: next}
	return &wrapped
}

// withStatus returns a context whose requests report their last response
// status through the returned pointer.
func withStatus(ctx context.Context) (context.Context, *int) {
	code := new(int)
	return context.WithValue(ctx, statusKey{}, code), code
}
