package httputil

import (
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr with port", remoteAddr: "10.0.0.5:51234", want: "10.0.0.5"},
		{name: "x-forwarded-for first hop", remoteAddr: "10.0.0.5:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 70.41.3.18"}, want: "203.0.113.9"},
		{name: "x-real-ip", remoteAddr: "10.0.0.5:1", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, want: "198.51.100.2"},
		{name: "bare address", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBoundedInt(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "missing uses default", raw: "", want: 50},
		{name: "lower bound", raw: "1", want: 1},
		{name: "upper bound", raw: "100", want: 100},
		{name: "zero rejected", raw: "0", wantErr: true},
		{name: "above max rejected", raw: "101", wantErr: true},
		{name: "not a number", raw: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			if tt.raw != "" {
				q.Set("limit", tt.raw)
			}
			got, err := ParseBoundedInt(q, "limit", 50, 1, 100)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseOptionalInt64(t *testing.T) {
	q := url.Values{"cursor": {"1700000000000000"}}
	v, ok, err := ParseOptionalInt64(q, "cursor")
	if err != nil || !ok || v != 1700000000000000 {
		t.Errorf("got (%d, %v, %v)", v, ok, err)
	}

	_, ok, err = ParseOptionalInt64(url.Values{}, "cursor")
	if err != nil || ok {
		t.Errorf("missing: got ok=%v err=%v", ok, err)
	}

	_, _, err = ParseOptionalInt64(url.Values{"cursor": {"x"}}, "cursor")
	if err == nil {
		t.Error("expected error for non-numeric cursor")
	}
}

func TestParseBoolParam(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "1": true, "false": false, "": false, "yes": false} {
		if got := ParseBoolParam(in); got != want {
			t.Errorf("ParseBoolParam(%q) = %v, want %v", in, got, want)
		}
	}
}
