package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	c := NewHTTPClient(3 * time.Second)
	if c.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", c.Timeout)
	}
	if _, ok := c.Transport.(*http.Transport); !ok {
		t.Errorf("expected *http.Transport, got %T", c.Transport)
	}
}

func TestWithUserAgent(t *testing.T) {
	t.Parallel()

	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c := NewHTTPClient(time.Second, WithUserAgent("emblem-test"))

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err = c.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(got) != 2 || got[0] != "emblem-test" || got[1] != "explicit" {
		t.Errorf("unexpected user agents %v", got)
	}
}

func TestWithPublicOnly_RejectsLoopback(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := NewHTTPClient(time.Second, WithPublicOnly())

	_, err := c.Get(srv.URL)
	if !errors.Is(err, ErrNonPublicAddress) {
		t.Fatalf("expected ErrNonPublicAddress, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no request to reach the server, got %d", calls)
	}
}

func TestIsPublicAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"8.8.8.8", true},
		{"2001:4860:4860::8888", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"::ffff:127.0.0.1", false},
		{"224.0.0.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()

			if got := IsPublicAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("IsPublicAddr(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}
