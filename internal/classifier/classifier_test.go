package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/feedgen/internal/models"
)

func post(rkey, text string, langs ...string) *models.Event {
	return &models.Event{
		URI:    models.URIFor("did:plc:x", models.DefaultCollection, rkey),
		Text:   text,
		Langs:  langs,
		TimeUS: int64(len(rkey)),
	}
}

func uris(events []*models.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.URI)
	}
	return out
}

func TestAcceptAll(t *testing.T) {
	in := []*models.Event{post("a", ""), post("b", "")}
	got, err := AcceptAll{}.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestFunc(t *testing.T) {
	c := Func(func(_ context.Context, events []*models.Event) ([]*models.Event, error) {
		return events[:1], nil
	})
	got, err := c.Classify(context.Background(), []*models.Event{post("a", ""), post("b", "")})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestKeyword(t *testing.T) {
	events := []*models.Event{
		post("1", "Shipping a new Go release", "en"),
		post("2", "golang tips", "en-US"),
		post("3", "nothing relevant", "en"),
		post("4", "Go言語", "ja"),
		post("5", "GO GO GO"),
	}

	tests := []struct {
		name      string
		terms     []string
		languages []string
		want      []string
	}{
		{
			name:  "terms only",
			terms: []string{"go", " "},
			want:  uris([]*models.Event{events[0], events[1], events[3], events[4]}),
		},
		{
			name:      "terms and language",
			terms:     []string{"go"},
			languages: []string{"EN"},
			want:      uris([]*models.Event{events[0], events[1]}),
		},
		{
			name:      "language only",
			languages: []string{"ja"},
			want:      uris([]*models.Event{events[3]}),
		},
		{
			name: "no filters accepts all",
			want: uris(events),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKeyword(tt.terms, tt.languages).Classify(context.Background(), events)
			require.NoError(t, err)
			assert.Equal(t, tt.want, uris(got))
		})
	}
}

func TestHTTP_Classify(t *testing.T) {
	a, b, c := post("a", "one"), post("b", "two"), post("c", "three")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ClassifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Events, 3)
		assert.Equal(t, "two", req.Events[1].Text)

		w.Header().Set("Content-Type", "application/json")
		// order in the response does not matter, unknown uris are ignored
		_ = json.NewEncoder(w).Encode(ClassifyResponse{Accepted: []string{c.URI, "at://unknown", a.URI}})
	}))
	defer server.Close()

	got, err := NewHTTP(server.URL, 5*time.Second).Classify(context.Background(), []*models.Event{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []string{a.URI, c.URI}, uris(got))
}

func TestHTTP_Classify_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`{"error":"model unavailable"}`))
			},
		},
		{
			name: "invalid body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewHTTP(server.URL, time.Second).Classify(context.Background(), []*models.Event{post("a", "")})
			assert.Error(t, err)
		})
	}
}

func TestHTTP_Classify_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := NewHTTP(server.URL, 50*time.Millisecond).Classify(context.Background(), []*models.Event{post("a", "")})
	assert.Error(t, err)
}

func TestHTTP_Classify_EmptyBatchSkipsRequest(t *testing.T) {
	got, err := NewHTTP("http://127.0.0.1:1", time.Second).Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
