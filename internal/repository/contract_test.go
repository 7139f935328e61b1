package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/feedgen/internal/models"
)

// newEvent builds a minimal post for collection app.bsky.feed.post.
func newEvent(rkey string, timeUS int64, text string) *models.Event {
	did := "did:plc:test"
	return &models.Event{
		URI:        models.URIFor(did, models.DefaultCollection, rkey),
		CID:        "cid-" + rkey,
		DID:        did,
		Collection: models.DefaultCollection,
		RKey:       rkey,
		TimeUS:     timeUS,
		CreatedAt:  time.Unix(0, timeUS*1000).UTC(),
		Langs:      []string{"en"},
		Text:       text,
		Record:     json.RawMessage(`{"text":"` + text + `"}`),
		Raw:        json.RawMessage(`{"kind":"commit"}`),
	}
}

func uris(events []*models.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.URI
	}
	return out
}

// runEventStoreContract exercises behaviour every EventStore must share.
func runEventStoreContract(t *testing.T, newStore func(t *testing.T) EventStore) {
	ctx := context.Background()

	t.Run("duplicate uri keeps first row", func(t *testing.T) {
		store := newStore(t)

		first := newEvent("a", 100, "first")
		inserted, err := store.InsertIfAbsent(ctx, first)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NotZero(t, first.StorageID)

		second := newEvent("a", 200, "second payload")
		inserted, err = store.InsertIfAbsent(ctx, second)
		require.NoError(t, err)
		assert.False(t, inserted)

		n, err := store.Count(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := store.QueryMostRecent(ctx, models.DefaultCollection)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Text)
		assert.Equal(t, int64(100), got.TimeUS)
	})

	t.Run("range is ordered and exclusive of cursor", func(t *testing.T) {
		store := newStore(t)

		// arrival order differs from sequence order
		for _, e := range []*models.Event{
			newEvent("c", 30, ""),
			newEvent("a", 10, ""),
			newEvent("b1", 20, ""),
			newEvent("b2", 20, ""),
		} {
			_, err := store.InsertIfAbsent(ctx, e)
			require.NoError(t, err)
		}

		all, err := store.QueryRange(ctx, models.DefaultCollection, models.Cursor{}, 10)
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].Position().Before(all[i].Position()), "row %d out of order", i)
		}

		after := all[1].Position()
		rest, err := store.QueryRange(ctx, models.DefaultCollection, after, 10)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		for _, e := range rest {
			assert.True(t, after.Before(e.Position()))
		}

		limited, err := store.QueryRange(ctx, models.DefaultCollection, models.Cursor{}, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		other, err := store.QueryRange(ctx, "app.bsky.feed.like", models.Cursor{}, 10)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("end to end A B duplicate A", func(t *testing.T) {
		store := newStore(t)

		a := newEvent("A", 1000, "alpha")
		b := newEvent("B", 2000, "bravo")
		for _, e := range []*models.Event{a, b, newEvent("A", 3000, "again")} {
			_, err := store.InsertIfAbsent(ctx, e)
			require.NoError(t, err)
		}

		asc, err := store.QueryRange(ctx, models.DefaultCollection, models.Cursor{}, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{a.URI, b.URI}, uris(asc))

		desc, err := store.QueryLatestBefore(ctx, LatestQuery{Collection: models.DefaultCollection, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{b.URI, a.URI}, uris(desc))

		before := b.TimeUS
		page, err := store.QueryLatestBefore(ctx, LatestQuery{Collection: models.DefaultCollection, Before: &before, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{a.URI}, uris(page))
	})

	t.Run("descending pages do not overlap", func(t *testing.T) {
		store := newStore(t)
		for i := int64(1); i <= 7; i++ {
			_, err := store.InsertIfAbsent(ctx, newEvent(string(rune('a'+i)), i*10, ""))
			require.NoError(t, err)
		}

		var before *int64
		seen := map[string]bool{}
		for {
			page, err := store.QueryLatestBefore(ctx, LatestQuery{Before: before, Limit: 3})
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			for _, e := range page {
				assert.False(t, seen[e.URI], "duplicate %s", e.URI)
				if before != nil {
					assert.Less(t, e.TimeUS, *before)
				}
				seen[e.URI] = true
			}
			next := page[len(page)-1].TimeUS
			before = &next
		}
		assert.Len(t, seen, 7)
	})

	t.Run("filters by did and text", func(t *testing.T) {
		store := newStore(t)

		e1 := newEvent("1", 10, "Hello World")
		e2 := newEvent("2", 20, "100% literal_match")
		e3 := newEvent("3", 30, "hello again")
		e3.DID = "did:plc:other"
		e3.URI = models.URIFor(e3.DID, e3.Collection, e3.RKey)
		for _, e := range []*models.Event{e1, e2, e3} {
			_, err := store.InsertIfAbsent(ctx, e)
			require.NoError(t, err)
		}

		got, err := store.QueryLatestBefore(ctx, LatestQuery{TextContains: "HELLO", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{e3.URI, e1.URI}, uris(got))

		got, err = store.QueryLatestBefore(ctx, LatestQuery{TextContains: "hello", DID: "did:plc:test", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{e1.URI}, uris(got))

		// metacharacters match literally
		got, err = store.QueryLatestBefore(ctx, LatestQuery{TextContains: "0% l", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{e2.URI}, uris(got))

		got, err = store.QueryLatestBefore(ctx, LatestQuery{TextContains: "_", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{e2.URI}, uris(got))
	})

	t.Run("empty store", func(t *testing.T) {
		store := newStore(t)

		_, err := store.QueryMostRecent(ctx, models.DefaultCollection)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := store.Count(ctx, "")
		require.NoError(t, err)
		assert.Zero(t, n)

		page, err := store.QueryLatestBefore(ctx, LatestQuery{Limit: 50})
		require.NoError(t, err)
		assert.Empty(t, page)

		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("round trips optional fields", func(t *testing.T) {
		store := newStore(t)

		root := "at://did:plc:x/app.bsky.feed.post/root"
		e := newEvent("reply", 42, "re")
		e.ReplyRootURI = &root
		e.ReplyParentURI = &root
		e.Langs = []string{"en", "ja"}
		_, err := store.InsertIfAbsent(ctx, e)
		require.NoError(t, err)

		got, err := store.QueryMostRecent(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, got.ReplyParentURI)
		assert.Equal(t, root, *got.ReplyParentURI)
		assert.Equal(t, []string{"en", "ja"}, got.Langs)
		assert.JSONEq(t, `{"text":"re"}`, string(got.Record))
		assert.JSONEq(t, `{"kind":"commit"}`, string(got.Raw))
		assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, got.IsReply())
	})
}
