package jetstream

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionURL(t *testing.T) {
	got, err := SubscriptionURL(DefaultURL,
		[]string{"app.bsky.feed.post", " ", "app.bsky.feed.like"},
		1725911162329308,
		[]string{"did:plc:a", "did:plc:b"},
	)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "/subscribe", u.Path)

	q := u.Query()
	assert.Equal(t, []string{"app.bsky.feed.post", "app.bsky.feed.like"}, q["wantedCollections"])
	assert.Equal(t, []string{"1725911162329308"}, q["cursor"])
	assert.Equal(t, []string{"did:plc:a", "did:plc:b"}, q["wantedDids"])
}

func TestSubscriptionURL_ReplacesExistingCursor(t *testing.T) {
	got, err := SubscriptionURL("ws://localhost:6008/subscribe?cursor=1&compress=false", []string{"app.bsky.feed.post"}, 99, nil)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, []string{"99"}, u.Query()["cursor"])
	assert.Equal(t, "false", u.Query().Get("compress"))
	assert.NotContains(t, u.RawQuery, "wantedDids")
}

func TestSubscriptionURL_ZeroCursorOmitted(t *testing.T) {
	got, err := SubscriptionURL("ws://localhost/subscribe", nil, 0, nil)
	require.NoError(t, err)
	assert.NotContains(t, got, "cursor")
}

func TestSubscriptionURL_BadScheme(t *testing.T) {
	_, err := SubscriptionURL("http://localhost/subscribe", nil, 1, nil)
	assert.Error(t, err)

	_, err = SubscriptionURL("://bad", nil, 1, nil)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Nil(t, SplitList(""))
}
