// Package jetstreamtest provides envelope fixtures and an in-process
// websocket server for firehose tests.
package jetstreamtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gorilla/websocket"
)

// Post describes a synthetic create commit.
type Post struct {
	DID        string
	Collection string
	RKey       string
	TimeUS     int64
	Text       string
	Langs      []string
	CreatedAt  string
	ReplyRoot  string
	ReplyTo    string
	Operation  string
	Kind       string
}

// RandomPost fills a Post with fake but well-formed values.
func RandomPost(f *gofakeit.Faker, timeUS int64) Post {
	return Post{
		DID:        "did:plc:" + strings.ToLower(f.LetterN(24)),
		Collection: "app.bsky.feed.post",
		RKey:       strings.ToLower(f.LetterN(13)),
		TimeUS:     timeUS,
		Text:       f.Sentence(8),
		Langs:      []string{f.RandomString([]string{"en", "ja", "pt", "de"})},
		CreatedAt:  time.UnixMicro(timeUS).UTC().Format(time.RFC3339Nano),
	}
}

// JSON renders p as a firehose frame.
func (p Post) JSON() []byte {
	kind := p.Kind
	if kind == "" {
		kind = "commit"
	}
	op := p.Operation
	if op == "" {
		op = "create"
	}
	collection := p.Collection
	if collection == "" {
		collection = "app.bsky.feed.post"
	}

	record := map[string]any{
		"$type": collection,
		"text":  p.Text,
	}
	if p.CreatedAt != "" {
		record["createdAt"] = p.CreatedAt
	}
	if len(p.Langs) > 0 {
		record["langs"] = p.Langs
	}
	if p.ReplyTo != "" {
		root := p.ReplyRoot
		if root == "" {
			root = p.ReplyTo
		}
		record["reply"] = map[string]any{
			"root":   map[string]string{"uri": root, "cid": "bafyroot"},
			"parent": map[string]string{"uri": p.ReplyTo, "cid": "bafyparent"},
		}
	}

	env := map[string]any{
		"did":     p.DID,
		"time_us": p.TimeUS,
		"kind":    kind,
		"commit": map[string]any{
			"rev":        "3l" + p.RKey,
			"operation":  op,
			"collection": collection,
			"rkey":       p.RKey,
			"cid":        "bafy" + p.RKey,
			"record":     record,
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		panic(fmt.Sprintf("jetstreamtest: marshal envelope: %v", err))
	}
	return data
}

// URI is the natural key the ingester derives for p.
func (p Post) URI() string {
	collection := p.Collection
	if collection == "" {
		collection = "app.bsky.feed.post"
	}
	return "at://" + p.DID + "/" + collection + "/" + p.RKey
}

// Server is a websocket endpoint that replays scripted frames per connection.
// Each accepted connection consumes the next script; once scripts run out the
// connection is held open until the client leaves or the server closes.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	scripts  [][][]byte
	requests []string
	done     chan struct{}
	once     sync.Once
}

// NewServer starts a server that plays scripts in order, one per connection.
func NewServer(scripts ...[][]byte) *Server {
	s := &Server{scripts: scripts, done: make(chan struct{})}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.RawQuery)
		var frames [][]byte
		hold := len(s.scripts) == 0
		if !hold {
			frames, s.scripts = s.scripts[0], s.scripts[1:]
		}
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		if !hold {
			return
		}

		left := make(chan struct{})
		go func() {
			defer close(left)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		select {
		case <-s.done:
		case <-left:
		}
	}))
	return s
}

// URL returns the ws:// address of the subscription endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/subscribe"
}

// Requests returns the raw query string of every connection attempt.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Close releases held connections and stops the server.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
	s.Server.Close()
}
