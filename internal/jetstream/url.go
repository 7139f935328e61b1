package jetstream

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultURL is the public Jetstream endpoint.
const DefaultURL = "wss://jetstream2.us-west.bsky.network/subscribe"

// SubscriptionURL appends wantedCollections, cursor and wantedDids to base.
// Blank list entries are dropped. A cursor of 0 is omitted so the server
// starts at live tail.
func SubscriptionURL(base string, collections []string, cursor int64, dids []string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid jetstream url %q: %w", base, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid jetstream url %q: scheme must be ws or wss", base)
	}

	q := u.Query()
	q.Del("wantedCollections")
	q.Del("wantedDids")
	q.Del("cursor")
	for _, c := range collections {
		if c = strings.TrimSpace(c); c != "" {
			q.Add("wantedCollections", c)
		}
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	for _, d := range dids {
		if d = strings.TrimSpace(d); d != "" {
			q.Add("wantedDids", d)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SplitList splits a comma separated setting, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
