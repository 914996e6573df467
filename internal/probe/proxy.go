package probe

import (
	"context"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

// dialerFunc routes a DialContext through proxyURL when it is a socks5://
// URL. HTTP(S) proxies are left to http.Transport.Proxy and an empty
// proxyURL returns baseDial unchanged.
func dialerFunc(proxyURL string, baseDial func(ctx context.Context, network, addr string) (net.Conn, error)) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if proxyURL == "" {
		return baseDial
	}

	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme != "socks5" {
		return baseDial
	}

	var auth *proxy.Auth
	if u.User != nil {
		auth = &proxy.Auth{User: u.User.Username()}
		if p, ok := u.User.Password(); ok {
			auth.Password = p
		}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, &contextDialer{dial: baseDial})
	if err != nil {
		return baseDial
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
}

type contextDialer struct {
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (d *contextDialer) Dial(network, addr string) (net.Conn, error) {
	return d.dial(context.Background(), network, addr)
}
