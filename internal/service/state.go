package service

import (
	"go.uber.org/zap"

	"mpkai/internal/domain"
	"mpkai/internal/prompt"
)

// State is a stage of one query.
type State int

const (
	StateEmbedding State = iota
	StateRetrieving
	StateFiltering
	StateNoContext
	StateComposing
	StateGenerating
	StateCiting
	StateDone
	StateErrored
)

var stateNames = [...]string{"embedding", "retrieving", "filtering", "no_context", "composing", "generating", "citing", "done", "errored"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// query tracks one Ask call through its states.
type query struct {
	domain.QueryContext
	state State
	log   *zap.Logger
}

func (q *query) enter(s State) {
	q.state = s
	q.log.Debug("query state", zap.String("turn", q.TurnID), zap.Stringer("state", s))
}

// fail moves the query to Errored and renders err as the answer text.
func (q *query) fail(a domain.Answer, err error) (domain.Answer, error) {
	failedIn := q.state
	q.enter(StateErrored)
	q.log.Error("query failed", zap.String("turn", q.TurnID), zap.Stringer("stage", failedIn), zap.Error(err))
	a.Outcome = domain.Errored
	a.Text = prompt.ErrorAnswer(err)
	a.Citations = nil
	return a, err
}
