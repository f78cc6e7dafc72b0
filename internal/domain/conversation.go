package domain

// Turn is a single persisted conversation message.
type Turn struct {
	PK             string
	SK             string
	ConversationID string
	Role           string
	Content        string
	TTL            int64
}

// ConversationMeta stores aggregate conversation state: the monotonic
// listing-mode flag, the serialized property draft, and the selected model.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	ListingMode    bool
	DraftJSON      string
	Model          string
	LastActivity   string
	Turns          int
	TTL            int64
}
