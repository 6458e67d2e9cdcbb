package domain

// ChangeKind identifies which record a feed notification carries.
type ChangeKind string

const (
	ChangeSession ChangeKind = "session"
	ChangePlayer  ChangeKind = "player"
	ChangeAnswer  ChangeKind = "answer"
)

// Change is one notification from the store's change feed. Delivery is
// at-least-once and may be reordered, so the payload is always the full
// record for its key, never a diff: consumers replace, they do not merge.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	SessionID string     `json:"sessionId"`
	Session   *Session   `json:"session,omitempty"`
	Player    *Player    `json:"player,omitempty"`
	Answer    *Answer    `json:"answer,omitempty"`
}
