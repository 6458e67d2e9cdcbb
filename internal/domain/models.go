package domain

import "time"

// LifecycleState is the phase of a session's game state machine.
type LifecycleState string

const (
	StateLobby          LifecycleState = "LOBBY"
	StateQuestionActive LifecycleState = "QUESTION_ACTIVE"
	StateQuestionResult LifecycleState = "QUESTION_RESULT"
	StateLeaderboard    LifecycleState = "LEADERBOARD"
	StateFinished       LifecycleState = "FINISHED"
)

// Session is one running quiz instance, identified by a short join code.
// It is the record the host mutates and every client projects from the feed.
type Session struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	State           LifecycleState    `json:"state"`
	CurrentQuestion int               `json:"currentQuestion"`
	RevealQuestion  bool              `json:"revealQuestion"`
	ClanMode        bool              `json:"clanMode"`
	ClanNames       map[string]string `json:"clanNames,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Question is immutable once a session is authored.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// DefaultTimeLimitSeconds applies when a question carries no explicit limit.
const DefaultTimeLimitSeconds = 30

// TimeLimit returns the effective per-question countdown in seconds.
func (q Question) TimeLimit() int {
	if q.TimeLimitSeconds > 0 {
		return q.TimeLimitSeconds
	}
	return DefaultTimeLimitSeconds
}

// Player is one participant in a session. ID is stable across reconnects;
// JoinOrder is assigned by the store on first join and breaks leaderboard
// ties deterministically.
type Player struct {
	SessionID string `json:"sessionId"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Clan      string `json:"clan,omitempty"`
	Score     int    `json:"score"`
	Avatar    string `json:"avatar,omitempty"`
	JoinOrder int    `json:"joinOrder"`
}

// AnswerSchemaVersion pins the wire shape of Answer records. Earlier
// payload revisions drifted between a bare index and a wrapped object;
// everything at the store boundary now carries this version.
const AnswerSchemaVersion = 1

// Answer records one accepted submission. At most one exists per
// (session, question, player); the first write wins.
type Answer struct {
	SchemaVersion    int     `json:"schemaVersion"`
	SessionID        string  `json:"sessionId"`
	QuestionID       string  `json:"questionId"`
	PlayerID         string  `json:"playerId"`
	OptionIndex      int     `json:"optionIndex"`
	TimeTakenSeconds float64 `json:"timeTakenSeconds"`
	AwardedScore     int     `json:"awardedScore"`
}

// Standing is one leaderboard row. Rank 1 is the highest score.
type Standing struct {
	Rank   int    `json:"rank"`
	Player Player `json:"player"`
}

// Leaderboard captures the ordered scoreboard for a session checkpoint.
type Leaderboard struct {
	SessionID string     `json:"sessionId"`
	Standings []Standing `json:"standings"`
	Final     bool       `json:"final"`
}
