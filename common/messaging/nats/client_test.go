package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/feedgen/common/messaging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "feedgen", cfg.Name)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
}

func TestConfigOptions_Auth(t *testing.T) {
	base := DefaultConfig()
	plain := len(base.Options(nil))

	withUser := base
	withUser.Username, withUser.Password = "u", "p"
	assert.Len(t, withUser.Options(nil), plain+1)

	withToken := base
	withToken.Token = "secret"
	assert.Len(t, withToken.Options(nil), plain+1)

	// a username alone is not enough to enable user info
	userOnly := base
	userOnly.Username = "u"
	assert.Len(t, userOnly.Options(nil), plain)
}

func TestToNATS_Headers(t *testing.T) {
	m := toNATS(&messaging.Message{
		Subject:  messaging.SubjectPostsAccepted,
		Data:     []byte(`{}`),
		Metadata: map[string]string{messaging.HeaderMsgID: "at://did:plc:a/app.bsky.feed.post/1"},
	})

	assert.Equal(t, messaging.SubjectPostsAccepted, m.Subject)
	assert.Equal(t, "at://did:plc:a/app.bsky.feed.post/1", m.Header.Get(messaging.HeaderMsgID))

	bare := toNATS(&messaging.Message{Subject: "s"})
	assert.Nil(t, bare.Header)
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	_, err := NewClient(cfg, nil)
	assert.Error(t, err)
}
