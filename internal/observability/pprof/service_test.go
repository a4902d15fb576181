package pprof

import (
	"context"
	"net/http"
	"testing"
	"time"

	logx "qctrack/pkg/logx"
)

func get(t *testing.T, url string, bearer string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestReconfigureStartsWithAuthAndStops(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(logx.Nop())
	if err := s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekrit"}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	base := "http://" + s.Addr() + "/debug/pprof/"
	if code := get(t, base, ""); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", code)
	}
	if code := get(t, base, "sekrit"); code != http.StatusOK {
		t.Fatalf("bearer: status %d", code)
	}
	if code := get(t, base+"?token=sekrit", ""); code != http.StatusOK {
		t.Fatalf("query token: status %d", code)
	}

	if err := s.Reconfigure(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("addr after disable = %q", s.Addr())
	}
}

func TestCheckBind(t *testing.T) {
	t.Parallel()
	cases := []struct {
		addr, token string
		ok          bool
	}{
		{"127.0.0.1:6060", "", true},
		{"localhost:6060", "", true},
		{"[::1]:6060", "", true},
		{":6060", "", false},
		{"0.0.0.0:6060", "", false},
		{"0.0.0.0:6060", "t", true},
	}
	for _, c := range cases {
		if err := CheckBind(c.addr, c.token); (err == nil) != c.ok {
			t.Fatalf("CheckBind(%q, %q) = %v, want ok=%v", c.addr, c.token, err, c.ok)
		}
	}
	s := New(logx.Nop())
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"}); err == nil {
		t.Fatal("public bind without token should be refused")
	}
}
