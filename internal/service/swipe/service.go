package swipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/npc-swipe/internal/app"
	"github.com/oggyb/npc-swipe/internal/catalog"
	"github.com/oggyb/npc-swipe/internal/db"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
	"github.com/oggyb/npc-swipe/internal/ledger"
	"github.com/oggyb/npc-swipe/internal/logger"
	"github.com/oggyb/npc-swipe/internal/notify"
	"github.com/oggyb/npc-swipe/internal/reconcile"
	"github.com/oggyb/npc-swipe/internal/session"
)

// Outcome is the non-error result of a paging call.
type Outcome string

const (
	OutcomeShowing       Outcome = "showing"
	OutcomeNothingToShow Outcome = "nothing_to_show"
	OutcomeSessionAbsent Outcome = "session_absent"
	OutcomeExhausted     Outcome = "exhausted"
)

// Result describes where the user stands after a call, plus everything the
// chat surface was asked to do. Obligations are already dispatched.
type Result struct {
	Outcome     Outcome             `json:"outcome"`
	SessionID   string              `json:"session_id,omitempty"`
	Mode        session.Mode        `json:"mode,omitempty"`
	Profile     *db.Profile         `json:"profile,omitempty"`
	Position    int                 `json:"position,omitempty"`
	Total       int                 `json:"total,omitempty"`
	Decision    *DecisionReport     `json:"decision,omitempty"`
	Obligations []notify.Obligation `json:"obligations,omitempty"`
}

// DecisionReport tells what happened to the decision itself.
type DecisionReport struct {
	ProfileID string          `json:"profile_id"`
	Kind      db.DecisionKind `json:"kind"`
	// Recorded is false in trial mode and when the profile no longer exists.
	Recorded bool `json:"recorded"`
	Matched  bool `json:"matched"`
}

// SignalReport is the result of a profile signal or a forced match.
type SignalReport struct {
	Matched     bool                `json:"matched"`
	MatchID     string              `json:"match_id,omitempty"`
	Obligations []notify.Obligation `json:"obligations,omitempty"`
}

// ResetReport counts the rows one reset removed.
type ResetReport struct {
	Decisions      int64 `json:"decisions"`
	Matches        int64 `json:"matches"`
	Seen           int64 `json:"seen"`
	SessionCleared bool  `json:"session_cleared"`
}

// RemovalReport describes a profile removal and its cascade.
type RemovalReport struct {
	Profile       *db.Profile `json:"profile"`
	Decisions     int64       `json:"decisions"`
	Matches       int64       `json:"matches"`
	Signals       int64       `json:"signals"`
	Seen          int64       `json:"seen"`
	EndedSessions []string    `json:"ended_sessions,omitempty"`
}

// Service runs the swipe flow: sessions, decisions, signals, matches, resets
// and profile removals. Ledger writes are committed before any in-memory
// state moves; notifications go out afterwards without being waited on.
type Service struct {
	appCtx   *app.AppContext
	store    *ledger.Store
	catalog  *catalog.Catalog
	sessions *session.Manager
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a swipe Service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	log := appCtx.Logger
	if log == nil {
		log = logger.L()
	}
	return &Service{
		appCtx:   appCtx,
		store:    ledger.NewStore(appCtx.DB),
		catalog:  catalog.New(appCtx.DB),
		sessions: appCtx.Sessions,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSession builds a new queue for the user and shows the first card.
//
// Behavior:
//   - recording mode skips every profile the user has already seen.
//   - trial mode shows the whole catalog and never writes to the ledgers.
//   - an empty queue reports OutcomeNothingToShow and leaves no session behind.
func (s *Service) StartSession(ctx context.Context, userID string, mode session.Mode) (*Result, error) {
	if userID == "" {
		return nil, svcErr.Invalid("user_id", "is required")
	}
	if mode == "" {
		mode = session.ModeRecording
	}
	if !mode.Valid() {
		return nil, svcErr.Invalid("mode", "must be recording or trial")
	}

	ids, err := s.catalog.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	var seen map[string]bool
	if mode == session.ModeRecording {
		if seen, err = s.store.SeenProfiles(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to load seen profiles: %w", err)
		}
	}

	view, err := s.sessions.Start(userID, mode, ids, seen)
	if errors.Is(err, session.ErrNothingToShow) {
		s.log.Info("nothing left to show", "user_id", userID, "mode", mode)
		res := &Result{Outcome: OutcomeNothingToShow}
		s.emit(ctx, res, notify.Terminal(userID, notify.ReasonNoMoreProfiles))
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	logger.ForSession(s.log, view.SessionID, userID).Info("session started", "mode", mode, "queue", view.Total)
	s.appCtx.Activity.Record(ctx, userID, "started browsing profiles",
		fmt.Sprintf("mode=%s", mode), fmt.Sprintf("queue=%d", view.Total))

	res := &Result{}
	s.present(ctx, res, userID, view, session.StateBrowsing)
	return res, nil
}

// Current shows the card under the user's cursor again.
func (s *Service) Current(ctx context.Context, userID string) (*Result, error) {
	view, state := s.sessions.Current(userID)
	res := &Result{}
	s.present(ctx, res, userID, view, state)
	return res, nil
}

// Decide records the user's decision on the current card and moves on.
//
// Behavior:
//   - no session: OutcomeSessionAbsent, nothing is written.
//   - trial session: nothing is written, the cursor advances.
//   - the profile vanished from the catalog: skipped with a warning, the cursor advances.
//   - otherwise the decision, the seen mark and any resulting match commit in one
//     transaction before the cursor moves. If that fails the cursor stays put.
func (s *Service) Decide(ctx context.Context, userID string, kind db.DecisionKind) (*Result, error) {
	if !kind.Valid() {
		return nil, svcErr.Invalid("kind", "must be reject, approve or super")
	}

	view, state := s.sessions.Current(userID)
	if state != session.StateBrowsing {
		res := &Result{}
		s.present(ctx, res, userID, view, state)
		return res, nil
	}

	log := logger.ForSession(s.log, view.SessionID, userID).With("profile_id", view.ProfileID, "kind", kind)
	report := &DecisionReport{ProfileID: view.ProfileID, Kind: kind}
	var obligations []notify.Obligation

	switch profile, err := s.catalog.Get(ctx, view.ProfileID); {
	case errors.Is(err, svcErr.ErrNotFound):
		log.Warn("profile no longer exists, decision skipped")

	case err != nil:
		return nil, fmt.Errorf("failed to look up profile: %w", err)

	case view.Mode == session.ModeTrial:
		log.Debug("trial decision, nothing recorded")

	default:
		verdict, err := s.record(ctx, userID, profile.ID, kind)
		if errors.Is(err, svcErr.ErrNotFound) {
			log.Warn("profile removed while deciding, decision skipped")
			break
		}
		if err != nil {
			log.Error("decision not recorded", "err", err)
			return nil, svcErr.Persistence("record decision", err)
		}
		report.Recorded = true
		report.Matched = verdict.Matched()
		obligations = withProfile(verdict.Obligations, profile)

		if kind.Positive() {
			s.bumpApprovals(ctx, profile.ID)
		}
		log.Info("decision recorded", "matched", report.Matched)
		s.appCtx.Activity.Record(ctx, userID, fmt.Sprintf("%s %s", kindVerb(kind), profile.Name), "profile="+profile.ID)
		if report.Matched {
			s.appCtx.Activity.Record(ctx, userID, "matched with "+profile.Name, "origin="+string(db.OriginMutual))
		}
	}

	next, nextState := s.sessions.Advance(userID, view.SessionID)
	if nextState == session.StateAbsent {
		// the user restarted meanwhile; show whatever is current now
		next, nextState = s.sessions.Current(userID)
	}
	if nextState == session.StateExhausted {
		log.Info("session exhausted")
	}

	res := &Result{Decision: report}
	s.emit(ctx, res, obligations...)
	s.present(ctx, res, userID, next, nextState)
	return res, nil
}

// record appends the decision, the seen mark and any resulting match atomically.
// It returns ErrNotFound when the profile is gone by the time the transaction runs.
func (s *Service) record(ctx context.Context, userID, profileID string, kind db.DecisionKind) (reconcile.Verdict, error) {
	var verdict reconcile.Verdict
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		if _, err := s.catalog.WithTx(tx.DB()).Get(ctx, profileID); err != nil {
			return err
		}
		now := s.now()
		if err := tx.Decisions.Append(ctx, &db.Decision{UserID: userID, ProfileID: profileID, Kind: kind, CreatedAt: now}); err != nil {
			return fmt.Errorf("failed to append decision: %w", err)
		}
		if err := tx.Seen.Append(ctx, &db.SeenMark{UserID: userID, ProfileID: profileID, CreatedAt: now}); err != nil {
			return fmt.Errorf("failed to mark profile seen: %w", err)
		}
		v, err := reconcile.New(tx).OnPlayerDecision(ctx, userID, profileID, kind)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	return verdict, err
}

// ProfileSignal records that a profile is interested in a user and matches
// them when the user already approved the profile. An empty kind means approve.
func (s *Service) ProfileSignal(ctx context.Context, profileID, userID string, kind db.DecisionKind) (*SignalReport, error) {
	if userID == "" {
		return nil, svcErr.Invalid("user_id", "is required")
	}
	if kind == "" {
		kind = db.KindApprove
	}
	var (
		profile *db.Profile
		verdict reconcile.Verdict
	)
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		p, err := s.catalog.WithTx(tx.DB()).Get(ctx, profileID)
		if err != nil {
			return err
		}
		profile = p
		verdict, err = reconcile.New(tx).OnProfileSignal(ctx, profileID, userID, kind)
		return err
	})
	if errors.Is(err, svcErr.ErrInvalidInput) || errors.Is(err, svcErr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		s.log.Error("profile signal not recorded", "profile_id", profileID, "user_id", userID, "err", err)
		return nil, svcErr.Persistence("record profile signal", err)
	}

	report := &SignalReport{Matched: verdict.Matched(), Obligations: withProfile(verdict.Obligations, profile)}
	if verdict.Matched() {
		report.MatchID = verdict.Match.ID
	}
	s.log.Info("profile signal recorded", "profile_id", profileID, "user_id", userID, "kind", kind, "matched", report.Matched)
	s.appCtx.Activity.Record(ctx, userID, fmt.Sprintf("%s %s you", profile.Name, kindVerb(kind)), "profile="+profileID)
	if report.Matched {
		s.appCtx.Activity.Record(ctx, userID, "matched with "+profile.Name, "origin="+string(db.OriginMutual))
	}
	s.appCtx.Dispatcher.Dispatch(ctx, report.Obligations...)
	return report, nil
}

// ForceMatch appends an operator match without looking at either side.
func (s *Service) ForceMatch(ctx context.Context, userID, profileID string) (*SignalReport, error) {
	if userID == "" {
		return nil, svcErr.Invalid("user_id", "is required")
	}
	var (
		profile *db.Profile
		verdict reconcile.Verdict
	)
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		p, err := s.catalog.WithTx(tx.DB()).Get(ctx, profileID)
		if err != nil {
			return err
		}
		profile = p
		verdict, err = reconcile.New(tx).ForceMatch(ctx, userID, profileID)
		return err
	})
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		s.log.Error("forced match not recorded", "profile_id", profileID, "user_id", userID, "err", err)
		return nil, svcErr.Persistence("force match", err)
	}

	report := &SignalReport{Matched: true, MatchID: verdict.Match.ID, Obligations: withProfile(verdict.Obligations, profile)}
	s.log.Info("match forced", "profile_id", profileID, "user_id", userID, "match_id", report.MatchID)
	s.appCtx.Activity.Record(ctx, userID, "matched with "+profile.Name, "origin="+string(db.OriginOperator))
	s.appCtx.Dispatcher.Dispatch(ctx, report.Obligations...)
	return report, nil
}

// ResetUser wipes a user's decisions, matches and seen marks and drops their
// session. Profile signals aimed at the user survive.
func (s *Service) ResetUser(ctx context.Context, userID string) (*ResetReport, error) {
	if userID == "" {
		return nil, svcErr.Invalid("user_id", "is required")
	}

	report := &ResetReport{}
	var touched []string
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		liked, err := tx.Decisions.Query(ctx, ledger.ByUser(userID).Positive())
		if err != nil {
			return err
		}
		touched = profileIDs(liked)

		if report.Decisions, err = tx.Decisions.Remove(ctx, ledger.ByUser(userID)); err != nil {
			return err
		}
		if report.Matches, err = tx.Matches.Remove(ctx, ledger.ByUser(userID)); err != nil {
			return err
		}
		report.Seen, err = tx.Seen.Remove(ctx, ledger.ByUser(userID))
		return err
	})
	if err != nil {
		return nil, svcErr.Persistence("reset user", err)
	}

	report.SessionCleared = s.sessions.Clear(userID)
	s.invalidateApprovals(ctx, touched...)

	s.log.Info("user reset",
		"user_id", userID,
		"decisions", report.Decisions,
		"matches", report.Matches,
		"seen", report.Seen,
		"session_cleared", report.SessionCleared,
	)
	s.appCtx.Activity.Record(ctx, userID, "history reset",
		fmt.Sprintf("decisions=%d", report.Decisions),
		fmt.Sprintf("matches=%d", report.Matches),
		fmt.Sprintf("seen=%d", report.Seen),
	)
	return report, nil
}

// RemoveProfile deletes a profile and every ledger row that mentions it in one
// transaction, then drops it from active sessions. An unknown id changes nothing.
func (s *Service) RemoveProfile(ctx context.Context, profileID string) (*RemovalReport, error) {
	report := &RemovalReport{}
	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		cat := s.catalog.WithTx(tx.DB())
		p, err := cat.Get(ctx, profileID)
		if err != nil {
			return err
		}
		report.Profile = p

		if _, err := cat.Delete(ctx, profileID); err != nil {
			return err
		}
		scope := ledger.ByProfile(profileID)
		if report.Decisions, err = tx.Decisions.Remove(ctx, scope); err != nil {
			return err
		}
		if report.Matches, err = tx.Matches.Remove(ctx, scope); err != nil {
			return err
		}
		if report.Signals, err = tx.Signals.Remove(ctx, scope); err != nil {
			return err
		}
		report.Seen, err = tx.Seen.Remove(ctx, scope)
		return err
	})
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, svcErr.Persistence("remove profile", err)
	}

	report.EndedSessions = s.sessions.OnCatalogDeletion(profileID)
	s.invalidateApprovals(ctx, profileID)

	obligations := make([]notify.Obligation, 0, len(report.EndedSessions))
	for _, userID := range report.EndedSessions {
		obligations = append(obligations, notify.Terminal(userID, notify.ReasonNoMoreProfiles))
	}
	s.appCtx.Dispatcher.Dispatch(ctx, obligations...)

	s.log.Info("profile removed",
		"profile_id", profileID,
		"decisions", report.Decisions,
		"matches", report.Matches,
		"signals", report.Signals,
		"seen", report.Seen,
		"ended_sessions", len(report.EndedSessions),
	)
	s.appCtx.Activity.Record(ctx, "operator", "removed profile "+report.Profile.Name, "profile="+profileID)
	return report, nil
}

// ListLikes returns approve/super decisions, newest first. An empty userID
// lists every user.
func (s *Service) ListLikes(ctx context.Context, userID string, pageToken *string, limit int) ([]db.Decision, *string, error) {
	return s.store.ListPositive(ctx, userID, pageToken, limit)
}

// CountApprovals returns how many approve/super decisions a profile received.
// Cache-first strategy:
//  1. Attempts to read from Redis (approvals:count:profileID).
//  2. On a miss, counts in the DB.
//  3. On DB fetch, updates Redis with a 1h TTL.
func (s *Service) CountApprovals(ctx context.Context, profileID string) (int64, error) {
	rc := s.appCtx.RedisCache
	if rc != nil {
		if n, ok, err := rc.GetApprovalCount(ctx, profileID); err == nil && ok {
			return n, nil
		}
	}

	n, err := s.store.Decisions.Count(ctx, ledger.ByProfile(profileID).Positive())
	if err != nil {
		return 0, err
	}
	if rc != nil {
		_ = rc.SetApprovalCount(ctx, profileID, n)
	}
	return n, nil
}

// present fills res with the card under view, or with the terminal state.
// A queued profile that has since vanished is skipped.
func (s *Service) present(ctx context.Context, res *Result, userID string, view session.View, state session.State) {
	for state == session.StateBrowsing {
		p, err := s.catalog.Get(ctx, view.ProfileID)
		if err == nil {
			res.Outcome = OutcomeShowing
			res.SessionID = view.SessionID
			res.Mode = view.Mode
			res.Profile = p
			res.Position = view.Position
			res.Total = view.Total
			s.emit(ctx, res, notify.Card(userID, p, view.Position, view.Total))
			return
		}
		logger.ForSession(s.log, view.SessionID, userID).Warn("queued profile unavailable, skipping",
			"profile_id", view.ProfileID, "err", err)
		view, state = s.sessions.Advance(userID, view.SessionID)
	}

	switch state {
	case session.StateExhausted:
		res.Outcome = OutcomeExhausted
		s.emit(ctx, res, notify.Terminal(userID, notify.ReasonNoMoreProfiles))
	default:
		res.Outcome = OutcomeSessionAbsent
		s.emit(ctx, res, notify.Terminal(userID, notify.ReasonSessionAbsent))
	}
}

func (s *Service) emit(ctx context.Context, res *Result, obligations ...notify.Obligation) {
	res.Obligations = append(res.Obligations, obligations...)
	s.appCtx.Dispatcher.Dispatch(ctx, obligations...)
}

func (s *Service) bumpApprovals(ctx context.Context, profileID string) {
	if s.appCtx.RedisCache == nil {
		return
	}
	if err := s.appCtx.RedisCache.IncrApprovalCount(ctx, profileID); err != nil {
		s.log.Warn("approval counter not updated", "profile_id", profileID, "err", err)
	}
}

func (s *Service) invalidateApprovals(ctx context.Context, profileIDs ...string) {
	if s.appCtx.RedisCache == nil {
		return
	}
	if err := s.appCtx.RedisCache.InvalidateApprovalCounts(ctx, profileIDs...); err != nil {
		s.log.Warn("approval counters not invalidated", "profiles", profileIDs, "err", err)
	}
}

func withProfile(obligations []notify.Obligation, p *db.Profile) []notify.Obligation {
	for i := range obligations {
		if obligations[i].ProfileID == p.ID {
			obligations[i].Profile = p
		}
	}
	return obligations
}

func profileIDs(decisions []db.Decision) []string {
	seen := make(map[string]struct{}, len(decisions))
	var ids []string
	for _, d := range decisions {
		if _, ok := seen[d.ProfileID]; ok {
			continue
		}
		seen[d.ProfileID] = struct{}{}
		ids = append(ids, d.ProfileID)
	}
	return ids
}

func kindVerb(k db.DecisionKind) string {
	switch k {
	case db.KindSuper:
		return "super-approved"
	case db.KindApprove:
		return "approved"
	default:
		return "rejected"
	}
}
