// Package feedback turns like/dislike clicks into persisted scores and copies
// those scores onto the feature table the ranker trains on.
package feedback

import (
	"sync"

	"easy2trade/internal/metrics"
	"easy2trade/internal/session"
	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNotAnalyzed is returned for feedback on a coin the session has not
// analyzed yet.
var ErrNotAnalyzed = errors.New("coin has not been analyzed in this session")

// Outcome describes the effect of one click.
type Outcome struct {
	Coin   string       `json:"coin"`
	Action types.Action `json:"action"`
	Score  int          `json:"score"`
	// Already is set when the click repeated the previous action and
	// changed nothing.
	Already  bool `json:"already"`
	Inserted bool `json:"inserted"`
}

// Reconcile computes the score a click leads to. It is pure: st is not
// modified and nothing is persisted.
func Reconcile(st session.State, coin string, action types.Action) (session.State, Outcome, error) {
	coin = types.NormalizeTicker(coin)
	out := Outcome{Coin: coin, Action: action}

	if action != types.ActionLike && action != types.ActionDislike {
		return st, out, errors.Errorf("unknown action %q", action)
	}
	if !st.Analyzed(coin) {
		return st, out, errors.Wrapf(ErrNotAnalyzed, "coin %s", coin)
	}
	if st.LastAction == action {
		out.Already = true
		return st, out, nil
	}

	out.Score = step(st.StartScore, action)
	st.LastAction = action
	return st, out, nil
}

// step moves one unit away from start, jumping over zero so an active
// rating can never be confused with an unrated coin.
func step(start int, action types.Action) int {
	delta := 1
	if action == types.ActionDislike {
		delta = -1
	}
	next := start + delta
	if next == 0 {
		next += delta
	}
	return next
}

// Store is the part of the feedback table the reconciler needs.
type Store interface {
	Get(coin string) (types.FeedbackEntry, bool, error)
	Put(coin string, score int) (bool, error)
}

// Reconciler applies clicks against a persisted feedback table.
type Reconciler struct {
	store Store
	mu    sync.Mutex
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// ApplyFeedback reconciles the click and persists the new score before
// returning the updated session. On any error the returned state equals st.
func (r *Reconciler) ApplyFeedback(st session.State, coin string, action types.Action) (session.State, Outcome, error) {
	next, out, err := Reconcile(st, coin, action)
	if err != nil {
		recordAction(action, "rejected")
		return st, out, err
	}
	if out.Already {
		recordAction(action, "already")
		current, _, err := r.store.Get(out.Coin)
		if err != nil {
			return st, out, errors.Wrap(err, "could not read feedback")
		}
		out.Score = current.Score
		return st, out, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inserted, err := r.store.Put(out.Coin, out.Score)
	if err != nil {
		recordAction(action, "error")
		return st, out, errors.Wrapf(err, "could not store feedback for %s", out.Coin)
	}
	out.Inserted = inserted
	recordAction(action, "applied")

	log.Debugf("feedback %s on %s: start=%d score=%d inserted=%v",
		action, out.Coin, st.StartScore, out.Score, inserted)
	return next, out, nil
}

func recordAction(action types.Action, outcome string) {
	metrics.App.FeedbackActions.WithLabelValues(string(action), outcome).Inc()
}
