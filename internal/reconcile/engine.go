// Package reconcile turns two one-sided interest signals into a match.
//
// Detection happens when the second side is written: a player decision looks
// for an existing profile signal, a profile signal looks for an existing
// positive decision. History is never rescanned, and nothing checks whether
// the pair already matched, so repeating the second side appends another
// match. Callers that need at-most-once matches per pair must check
// themselves.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/npc-swipe/internal/db"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
	"github.com/oggyb/npc-swipe/internal/ledger"
	"github.com/oggyb/npc-swipe/internal/notify"
)

// Verdict is what reconciliation decided. A nil Match means no match yet.
type Verdict struct {
	Match       *db.MatchEvent
	Signal      *db.ProfileSignal
	Obligations []notify.Obligation
}

// Matched reports whether a match was produced.
func (v Verdict) Matched() bool { return v.Match != nil }

// EvaluateDecision decides whether a player decision completes a match.
// counterSignal is whether the profile already signalled interest in the user.
func EvaluateDecision(userID, profileID string, kind db.DecisionKind, counterSignal bool, now time.Time) Verdict {
	if !kind.Positive() || !counterSignal {
		return Verdict{}
	}
	return mutual(userID, profileID, now)
}

// EvaluateSignal decides whether a profile signal completes a match.
// priorInterest is whether the user already approved or super-approved the profile.
func EvaluateSignal(profileID, userID string, priorInterest bool, now time.Time) Verdict {
	if !priorInterest {
		return Verdict{}
	}
	return mutual(userID, profileID, now)
}

// Forced builds an operator match. It never looks at either side's history.
func Forced(userID, profileID string, now time.Time) Verdict {
	m := &db.MatchEvent{UserID: userID, ProfileID: profileID, Origin: db.OriginOperator, CreatedAt: now}
	return Verdict{Match: m, Obligations: []notify.Obligation{notify.Match(userID, profileID, db.OriginOperator)}}
}

func mutual(userID, profileID string, now time.Time) Verdict {
	m := &db.MatchEvent{UserID: userID, ProfileID: profileID, Origin: db.OriginMutual, CreatedAt: now}
	return Verdict{Match: m, Obligations: []notify.Obligation{notify.Match(userID, profileID, db.OriginMutual)}}
}

// Engine applies verdicts to the ledgers of one Store. Build it from a
// transaction-bound Store so the lookup and the append commit together.
type Engine struct {
	store *ledger.Store
	now   func() time.Time
}

// New creates an engine over the given ledgers.
func New(store *ledger.Store) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// OnPlayerDecision runs after a decision has been appended. Only approve and
// super decisions can complete a match.
func (e *Engine) OnPlayerDecision(ctx context.Context, userID, profileID string, kind db.DecisionKind) (Verdict, error) {
	if !kind.Positive() {
		return Verdict{}, nil
	}

	signalled, err := e.store.Signals.Exists(ctx, ledger.Pair(userID, profileID))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to look up profile signals: %w", err)
	}

	v := EvaluateDecision(userID, profileID, kind, signalled, e.now())
	if err := e.persist(ctx, v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

// OnProfileSignal appends the signal and matches when the user had already
// shown interest in the profile.
func (e *Engine) OnProfileSignal(ctx context.Context, profileID, userID string, kind db.DecisionKind) (Verdict, error) {
	if !kind.Positive() {
		return Verdict{}, svcErr.Invalid("kind", "a profile signal is approve or super")
	}

	signal := &db.ProfileSignal{ProfileID: profileID, UserID: userID, Kind: kind, CreatedAt: e.now()}
	if err := e.store.Signals.Append(ctx, signal); err != nil {
		return Verdict{}, fmt.Errorf("failed to append profile signal: %w", err)
	}

	interested, err := e.store.Decisions.Exists(ctx, ledger.Pair(userID, profileID).Positive())
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to look up decisions: %w", err)
	}

	v := EvaluateSignal(profileID, userID, interested, e.now())
	v.Signal = signal
	if err := e.persist(ctx, v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

// ForceMatch appends an operator match unconditionally.
func (e *Engine) ForceMatch(ctx context.Context, userID, profileID string) (Verdict, error) {
	v := Forced(userID, profileID, e.now())
	if err := e.persist(ctx, v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

func (e *Engine) persist(ctx context.Context, v Verdict) error {
	if v.Match == nil {
		return nil
	}
	if err := e.store.Matches.Append(ctx, v.Match); err != nil {
		return fmt.Errorf("failed to append match: %w", err)
	}
	return nil
}
