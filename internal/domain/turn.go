package domain

// Turn is a single completed conversation exchange: the user's message and
// the reply that was sent back. PK/SK are only populated by the DynamoDB
// store; the in-memory store leaves them empty.
type Turn struct {
	PK       string
	SK       string
	TurnID   string
	ChatKey  string
	Question string
	Answer   string
	Status   string
	TTL      int64
}

// ChatMeta stores aggregate per-chat state alongside the turn records.
type ChatMeta struct {
	PK           string
	SK           string
	ChatKey      string
	LastActivity string
	Turns        int
	TTL          int64
}
