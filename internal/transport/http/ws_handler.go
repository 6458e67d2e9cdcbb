package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
)

// WSHandler bridges clients onto the session core. Each connection runs
// the client event loop from one goroutine: inbound UI actions and feed
// notifications both funnel into ordered channel sends, never concurrent
// mutation of the connection's projection.
type WSHandler struct {
	resolver    *app.Resolver
	roster      *app.Roster
	collector   *app.Collector
	engine      *app.Engine
	store       app.SessionStore
	questions   app.QuestionSource
	clock       clockwork.Clock
	timerStates app.TimerStateStore
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(resolver *app.Resolver, roster *app.Roster, collector *app.Collector, engine *app.Engine, store app.SessionStore, questions app.QuestionSource, clock clockwork.Clock, timerStates app.TimerStateStore, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		resolver:    resolver,
		roster:      roster,
		collector:   collector,
		engine:      engine,
		store:       store,
		questions:   questions,
		clock:       clock,
		timerStates: timerStates,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string  `json:"questionId"`
	OptionIndex    int     `json:"optionIndex"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

type transitionPayload struct {
	Action string `json:"action"`
}

type tallyPayload struct {
	QuestionID string      `json:"questionId"`
	Counts     map[int]int `json:"counts"`
}

type timerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Remaining     int `json:"remaining,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the connection into the session.
// Players join the roster and submit answers; the host additionally drives
// lifecycle transitions. Everyone receives session, leaderboard, and tally
// updates projected from the change feed.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("session")
	playerID := r.URL.Query().Get("player")
	name := r.URL.Query().Get("name")
	role := r.URL.Query().Get("role")
	clan := r.URL.Query().Get("clan")
	if role == "" {
		role = "player"
	}

	session, err := h.resolver.Resolve(r.Context(), code)
	switch {
	case errors.Is(err, domain.ErrInvalidSessionCode):
		http.Error(w, "invalid session code", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "session lookup failed", http.StatusServiceUnavailable)
		return
	}
	if role == "player" && (playerID == "" || name == "") {
		http.Error(w, "missing player or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if role == "player" {
		if _, err := h.roster.Join(r.Context(), session.ID, playerID, name, clan, ""); err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
	}

	// send is never closed: late senders (expiry callbacks, the feed
	// forwarder) select against closeSignals instead, so a send racing the
	// teardown gives up rather than hitting a closed channel.
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug().Err(err).Msg("ws write error")
					return
				}
			case <-closeSignals:
				// Flush what is already queued, then stop.
				for {
					select {
					case msg := <-send:
						if err := conn.WriteJSON(msg); err != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	// The advisory countdown runs per connection: it mirrors what this
	// client's question timer should show, resuming from persisted state
	// after a reconnect. It never gates answer acceptance.
	timers := app.NewTimerService(h.clock, h.timerStates, h.log)
	var (
		timerMu   sync.Mutex
		countdown *app.Countdown
	)
	syncTimer := func(s domain.Session) {
		if s.State != domain.StateQuestionActive || !s.RevealQuestion {
			timerMu.Lock()
			if countdown != nil {
				countdown.Stop()
			}
			timerMu.Unlock()
			return
		}
		questions, err := h.questions.Questions(r.Context(), s.ID)
		if err != nil || s.CurrentQuestion < 0 || s.CurrentQuestion >= len(questions) {
			return
		}
		key := app.TimerKey{SessionID: s.ID, QuestionIndex: s.CurrentQuestion}
		timerMu.Lock()
		if countdown != nil && countdown.Key() == key {
			timerMu.Unlock()
			return
		}
		timerMu.Unlock()

		c, err := timers.Start(r.Context(), key, questions[s.CurrentQuestion].TimeLimit(), func() {
			emit(outboundMessage[any]{Type: "timerExpired", Payload: timerPayload{QuestionIndex: key.QuestionIndex}})
		})
		if err != nil {
			h.log.Warn().Err(err).Str("session", s.ID).Msg("countdown start failed")
			return
		}
		timerMu.Lock()
		countdown = c
		timerMu.Unlock()
		emit(outboundMessage[any]{Type: "timerStarted", Payload: timerPayload{
			QuestionIndex: key.QuestionIndex,
			Remaining:     c.Remaining(),
		}})
	}

	projection := app.NewProjection(session)
	forwarder := app.ObserverFunc(func(change domain.Change) {
		switch change.Kind {
		case domain.ChangeSession:
			current := projection.Session()
			emit(outboundMessage[any]{Type: "session", Payload: current})
			syncTimer(current)
		case domain.ChangePlayer:
			current := projection.Session()
			emit(outboundMessage[any]{Type: "leaderboard", Payload: domain.Leaderboard{
				SessionID: current.ID,
				Standings: app.Rank(projection.Players()),
				Final:     current.State == domain.StateFinished,
			}})
		case domain.ChangeAnswer:
			if change.Answer == nil {
				return
			}
			emit(outboundMessage[any]{Type: "tally", Payload: tallyPayload{
				QuestionID: change.Answer.QuestionID,
				Counts:     h.collector.Tally(session.ID, change.Answer.QuestionID),
			}})
		}
	})

	cancelWatch, err := projection.Watch(r.Context(), h.store, h.collector, forwarder)
	if err != nil {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		close(closeSignals)
		<-writerDone
		return
	}

	// Records that predate the subscription never replay on the feed, so a
	// mid-game connection backfills the roster and the current question's
	// answers from the store before the first push. Feed redeliveries
	// overlapping the backfill are idempotent full-record replaces.
	players, err := h.store.ListPlayers(r.Context(), session.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("session", session.ID).Msg("roster backfill failed")
	}
	for i := range players {
		projection.Apply(domain.Change{Kind: domain.ChangePlayer, SessionID: session.ID, Player: &players[i]})
	}

	emit(outboundMessage[any]{Type: "session", Payload: session})
	syncTimer(session)
	if len(players) > 0 {
		emit(outboundMessage[any]{Type: "leaderboard", Payload: domain.Leaderboard{
			SessionID: session.ID,
			Standings: app.Rank(projection.Players()),
			Final:     session.State == domain.StateFinished,
		}})
	}
	if questionID, ok := h.currentQuestionID(r.Context(), session); ok &&
		(session.State == domain.StateQuestionActive || session.State == domain.StateQuestionResult) {
		// A cold collector (fresh process) rebuilds its view from persisted
		// answers; a warm one keeps its snapshot, frozen or not.
		if len(h.collector.Tally(session.ID, questionID)) == 0 {
			if err := h.collector.Replay(r.Context(), session.ID, questionID); err != nil {
				h.log.Warn().Err(err).Str("session", session.ID).Msg("tally backfill failed")
			}
		}
		emit(outboundMessage[any]{Type: "tally", Payload: tallyPayload{
			QuestionID: questionID,
			Counts:     h.collector.Tally(session.ID, questionID),
		}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			h.handleAnswer(r, emit, session.ID, playerID, inbound.Payload)
		case "timerPause":
			// Client lost foreground visibility; hold the countdown.
			timerMu.Lock()
			if countdown != nil {
				countdown.Pause()
			}
			timerMu.Unlock()
		case "timerResume":
			timerMu.Lock()
			if countdown != nil {
				countdown.Resume()
			}
			timerMu.Unlock()
		case "transition":
			if role != "host" {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "transitions are host-only"}})
				continue
			}
			h.handleTransition(r, emit, session.ID, inbound.Payload)
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	timerMu.Lock()
	if countdown != nil {
		countdown.Stop()
	}
	timerMu.Unlock()

	// Release every sender still in flight (including an expiry callback
	// racing this teardown), drain the watch loop, then let the writer
	// flush and exit.
	close(closeSignals)
	cancelWatch()
	<-writerDone
}

func (h *WSHandler) handleAnswer(r *http.Request, emit func(outboundMessage[any]), sessionID, playerID string, raw json.RawMessage) {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
		return
	}
	result, err := h.collector.Submit(r.Context(), sessionID, payload.QuestionID, playerID, payload.OptionIndex, payload.ElapsedSeconds)
	if err != nil {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	emit(outboundMessage[any]{Type: "answerResult", Payload: result})
}

func (h *WSHandler) handleTransition(r *http.Request, emit func(outboundMessage[any]), sessionID string, raw json.RawMessage) {
	var payload transitionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid transition payload"}})
		return
	}

	var (
		session domain.Session
		err     error
	)
	switch payload.Action {
	case "start":
		session, err = h.engine.StartQuiz(r.Context(), sessionID)
	case "results":
		session, err = h.engine.RevealResults(r.Context(), sessionID)
	case "leaderboard":
		session, err = h.engine.ShowLeaderboard(r.Context(), sessionID)
	case "next":
		session, err = h.engine.NextQuestion(r.Context(), sessionID)
	case "finish":
		session, err = h.engine.Finish(r.Context(), sessionID)
	default:
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unknown transition action"}})
		return
	}
	if err != nil {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	emit(outboundMessage[any]{Type: "session", Payload: session})
}

func (h *WSHandler) currentQuestionID(ctx context.Context, session domain.Session) (string, bool) {
	questions, err := h.questions.Questions(ctx, session.ID)
	if err != nil || session.CurrentQuestion < 0 || session.CurrentQuestion >= len(questions) {
		return "", false
	}
	return questions[session.CurrentQuestion].ID, true
}
