package messaging

// Subjects follow {app}.{resource}.{action}.
const (
	// SubjectPostsAccepted carries every event a classifier accepted.
	SubjectPostsAccepted = "feedgen.posts.accepted"
)

// Header keys set on published messages.
const (
	// HeaderMsgID is honoured by JetStream-enabled servers for duplicate suppression.
	HeaderMsgID = "Nats-Msg-Id"

	HeaderCollection = "Feedgen-Collection"
	HeaderSequence   = "Feedgen-Time-Us"
)

// CollectionSubject scopes a base subject to a single collection, e.g.
// feedgen.posts.accepted.app_bsky_feed_post. Dots inside the collection NSID
// are replaced so they do not create extra subject tokens.
func CollectionSubject(base, collection string) string {
	out := make([]byte, 0, len(collection))
	for i := 0; i < len(collection); i++ {
		c := collection[i]
		switch c {
		case '.', '*', '>', ' ':
			c = '_'
		}
		out = append(out, c)
	}
	return base + "." + string(out)
}
