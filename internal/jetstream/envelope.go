// Package jetstream decodes firehose envelopes and manages the websocket
// subscription they arrive on.
package jetstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/feedgen/internal/models"
)

const (
	KindCommit      = "commit"
	OperationCreate = "create"
)

var (
	// ErrNotCreate is returned by BuildEvent for anything but a commit/create.
	ErrNotCreate = errors.New("envelope is not a create commit")

	// ErrMalformed wraps envelopes that are valid JSON but miss required fields.
	ErrMalformed = errors.New("malformed envelope")
)

// Envelope is one firehose message.
type Envelope struct {
	Kind   string  `json:"kind"`
	DID    string  `json:"did"`
	TimeUS int64   `json:"time_us"`
	Commit *Commit `json:"commit,omitempty"`

	raw json.RawMessage
}

// Commit describes a repository write.
type Commit struct {
	Rev        string          `json:"rev,omitempty"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	CID        string          `json:"cid,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// postRecord holds the post fields copied onto the Event. A field of an
// unexpected JSON type decodes as its zero value.
type postRecord struct {
	CreatedAt      string
	Langs          []string
	Text           string
	ReplyRootURI   string
	ReplyParentURI string
}

// decodeRecord extracts the post fields from a record object. Only a record
// that is not a JSON object is an error.
func decodeRecord(record json.RawMessage) (postRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return postRecord{}, err
	}

	post := postRecord{
		CreatedAt: stringField(fields["createdAt"]),
		Langs:     stringList(fields["langs"]),
		Text:      stringField(fields["text"]),
	}
	if reply := objectField(fields["reply"]); reply != nil {
		post.ReplyRootURI = stringField(objectField(reply["root"])["uri"])
		post.ReplyParentURI = stringField(objectField(reply["parent"])["uri"])
	}
	return post, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// stringList keeps the string elements of an array and ignores anything else.
func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := stringField(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func objectField(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

// Decode parses a text frame. The original bytes are retained as the raw envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	env.raw = append(json.RawMessage(nil), data...)
	return &env, nil
}

// Raw returns the envelope exactly as received.
func (e *Envelope) Raw() json.RawMessage {
	return e.raw
}

// IsCreate reports whether e creates a record in one of collections.
func (e *Envelope) IsCreate(collections ...string) bool {
	if e.Kind != KindCommit || e.Commit == nil || e.Commit.Operation != OperationCreate {
		return false
	}
	for _, c := range collections {
		if e.Commit.Collection == c {
			return true
		}
	}
	return false
}

// BuildEvent converts a create commit into an Event. now supplies createdAt
// when the record carries no parseable timestamp.
func BuildEvent(e *Envelope, now func() time.Time) (*models.Event, error) {
	if e.Kind != KindCommit || e.Commit == nil || e.Commit.Operation != OperationCreate {
		return nil, ErrNotCreate
	}
	c := e.Commit
	if e.DID == "" || c.Collection == "" || c.RKey == "" || e.TimeUS == 0 {
		return nil, fmt.Errorf("%w: did, collection, rkey and time_us are required", ErrMalformed)
	}

	record := c.Record
	if len(record) == 0 || string(record) == "null" {
		record = json.RawMessage(`{}`)
	}

	post, err := decodeRecord(record)
	if err != nil {
		return nil, fmt.Errorf("%w: record: %w", ErrMalformed, err)
	}

	ev := &models.Event{
		URI:        models.URIFor(e.DID, c.Collection, c.RKey),
		CID:        c.CID,
		DID:        e.DID,
		Collection: c.Collection,
		RKey:       c.RKey,
		TimeUS:     e.TimeUS,
		CreatedAt:  ParseCreatedAt(post.CreatedAt, now),
		Langs:      post.Langs,
		Text:       post.Text,
		Record:     record,
		Raw:        e.raw,
	}
	if post.ReplyRootURI != "" {
		ev.ReplyRootURI = &post.ReplyRootURI
	}
	if post.ReplyParentURI != "" {
		ev.ReplyParentURI = &post.ReplyParentURI
	}
	if len(ev.Raw) == 0 {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode raw envelope: %w", err)
		}
		ev.Raw = raw
	}
	return ev, nil
}

// createdAtLayouts are tried in order. Layouts without an offset are read
// as UTC, and a fractional second is accepted after any seconds field.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCreatedAt accepts RFC 3339 and offset-less ISO 8601 timestamps and
// returns them in UTC, falling back to now().
func ParseCreatedAt(s string, now func() time.Time) time.Time {
	if now == nil {
		now = time.Now
	}
	if s == "" {
		return now().UTC()
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return now().UTC()
}
