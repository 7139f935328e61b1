package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// SkeletonItem is one entry of a feed skeleton.
type SkeletonItem struct {
	Post string `json:"post"`
}

// SkeletonResponse is the getFeedSkeleton body. Cursor is null on an empty page.
type SkeletonResponse struct {
	Cursor *string        `json:"cursor"`
	Feed   []SkeletonItem `json:"feed"`
}

// PostItem is the /posts representation of an Event.
type PostItem struct {
	ID             int64           `json:"id"`
	URI            string          `json:"uri"`
	CID            string          `json:"cid"`
	DID            string          `json:"did"`
	Collection     string          `json:"collection"`
	RKey           string          `json:"rkey"`
	TimeUS         int64           `json:"time_us"`
	CreatedAt      time.Time       `json:"created_at"`
	Langs          []string        `json:"langs"`
	Text           string          `json:"text"`
	ReplyRootURI   *string         `json:"reply_root_uri"`
	ReplyParentURI *string         `json:"reply_parent_uri"`
	Record         json.RawMessage `json:"record"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// NewPostItem copies e, keeping the raw envelope only when includeRaw is set.
func NewPostItem(e *Event, includeRaw bool) PostItem {
	item := PostItem{
		ID:             e.StorageID,
		URI:            e.URI,
		CID:            e.CID,
		DID:            e.DID,
		Collection:     e.Collection,
		RKey:           e.RKey,
		TimeUS:         e.TimeUS,
		CreatedAt:      e.CreatedAt,
		Langs:          e.Langs,
		Text:           e.Text,
		ReplyRootURI:   e.ReplyRootURI,
		ReplyParentURI: e.ReplyParentURI,
		Record:         e.Record,
	}
	if item.Langs == nil {
		item.Langs = []string{}
	}
	if includeRaw {
		item.Raw = e.Raw
	}
	return item
}

// PostsResponse is the /posts body.
type PostsResponse struct {
	Cursor *string    `json:"cursor"`
	Items  []PostItem `json:"items"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	OK bool   `json:"ok"`
	DB string `json:"db"`
}

// StatsResponse is the /stats body. Latest fields are null on an empty store.
type StatsResponse struct {
	Count        int64   `json:"count"`
	LatestTimeUS *int64  `json:"latest_time_us"`
	LatestURI    *string `json:"latest_uri"`
}

// PageCursor renders the sequence of the last item of a descending page.
// It returns nil for an empty page.
func PageCursor(events []*Event) *string {
	if len(events) == 0 {
		return nil
	}
	s := strconv.FormatInt(events[len(events)-1].TimeUS, 10)
	return &s
}
