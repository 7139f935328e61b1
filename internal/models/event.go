package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultCollection is the post record collection.
const DefaultCollection = "app.bsky.feed.post"

// Event is one persisted "post created" record.
type Event struct {
	StorageID      int64           `json:"id"`
	URI            string          `json:"uri"` // at://<did>/<collection>/<rkey>, unique
	CID            string          `json:"cid"`
	DID            string          `json:"did"`
	Collection     string          `json:"collection"`
	RKey           string          `json:"rkey"`
	TimeUS         int64           `json:"time_us"` // source sequence, microseconds
	CreatedAt      time.Time       `json:"created_at"`
	Langs          []string        `json:"langs"`
	Text           string          `json:"text"`
	ReplyRootURI   *string         `json:"reply_root_uri"`
	ReplyParentURI *string         `json:"reply_parent_uri"`
	Record         json.RawMessage `json:"record"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// URIFor builds the natural key for a record.
func URIFor(did, collection, rkey string) string {
	return fmt.Sprintf("at://%s/%s/%s", did, collection, rkey)
}

// Position returns the ordering key of the event as a Cursor.
func (e *Event) Position() Cursor {
	return Cursor{Sequence: e.TimeUS, StorageID: e.StorageID}
}

// IsReply reports whether the record references a parent post.
func (e *Event) IsReply() bool {
	return e.ReplyParentURI != nil
}
