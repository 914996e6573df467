package probe

import (
	"net/http"

	"golang.org/x/oauth2"
)

// oauthTransport injects a bearer token from src into every request,
// letting cloud REST checkers share one http.Client shape regardless
// of which provider issued the token.
type oauthTransport struct {
	src  oauth2.TokenSource
	base http.RoundTripper
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.src.Token()
	if err != nil {
		return nil, err
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r2 := req.Clone(req.Context())
	tok.SetAuthHeader(r2)
	return base.RoundTrip(r2)
}
