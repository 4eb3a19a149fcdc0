package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrNonPublicAddress は公開されていない宛先への接続を拒否したことを表します。
var ErrNonPublicAddress = errors.New("destination address is not public")

const maxRedirects = 5

type options struct {
	userAgent  string
	publicOnly bool
}

// Option は NewHTTPClient の追加設定です。
type Option func(*options)

// WithUserAgent は User-Agent ヘッダーが無いリクエストに ua を付与します。
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithPublicOnly はループバック・プライベート・リンクローカルなどの宛先への接続を拒否します。
// 判定は名前解決後の接続時に行うため、リダイレクト先やDNSで内部アドレスを返すホストにも効きます。
// 環境変数のプロキシは使いません。
func WithPublicOnly() Option {
	return func(o *options) { o.publicOnly = true }
}

// NewHTTPClient は外部API・画像取得用のHTTPクライアントを作成します。
//
// http.DefaultClient にはタイムアウトが無いため、外部への通信は必ずこのクライアントを使います。
// プロキシは環境変数（HTTP_PROXYなど）に従います。
func NewHTTPClient(timeout time.Duration, opts ...Option) *http.Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	c := &http.Client{Timeout: timeout}

	if o.publicOnly {
		dialer.Control = rejectNonPublic
		t.Proxy = nil
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		}
	}
	t.DialContext = dialer.DialContext

	c.Transport = t
	if o.userAgent != "" {
		c.Transport = &userAgentTransport{base: t, ua: o.userAgent}
	}
	return c
}

func rejectNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !IsPublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrNonPublicAddress, ip)
	}
	return nil
}

// sharedAddressSpace はキャリアグレードNAT用の 100.64.0.0/10 です。
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsPublicAddr はグローバルに到達可能なユニキャストアドレスかどうかを返します。
func IsPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}
