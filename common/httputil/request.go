package httputil

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GetClientIP returns the originating client address, honouring
// X-Forwarded-For (first hop) and X-Real-IP before RemoteAddr.
// Any port suffix is stripped.
func GetClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = strings.TrimSpace(strings.Split(xff, ",")[0])
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// ParseBoundedInt reads query parameter key as an integer in [min, max].
// A missing parameter yields def. Malformed or out-of-range values are errors
// so handlers can answer 400 instead of silently clamping.
func ParseBoundedInt(q url.Values, key string, def, min, max int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}
	return v, nil
}

// ParseOptionalInt64 reads key as an int64. ok is false when the parameter is absent.
func ParseOptionalInt64(q url.Values, key string) (v int64, ok bool, err error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer", key)
	}
	return v, true, nil
}

// ParseBoolParam accepts the strconv.ParseBool spellings; anything else is false.
func ParseBoolParam(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}
