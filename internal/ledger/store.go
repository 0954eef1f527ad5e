package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/npc-swipe/internal/db"
	"github.com/oggyb/npc-swipe/internal/utils/pagination"
)

// Page sizes for ListPositive. Larger limits are clamped to MaxPageSize.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store groups the four ledgers the swipe core owns.
type Store struct {
	db *gorm.DB

	Decisions Ledger[db.Decision]
	Seen      Ledger[db.SeenMark]
	Matches   Ledger[db.MatchEvent]
	Signals   Ledger[db.ProfileSignal]
}

// NewStore binds all ledgers to the given DB connection.
func NewStore(database *gorm.DB) *Store {
	return &Store{
		db:        database,
		Decisions: newGormLedger[db.Decision](database, false),
		Seen:      newGormLedger[db.SeenMark](database, true),
		Matches:   newGormLedger[db.MatchEvent](database, false),
		Signals:   newGormLedger[db.ProfileSignal](database, false),
	}
}

// DB exposes the connection the store is bound to, so callers can run other
// repositories inside the same transaction.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn against a Store bound to one transaction.
// Nothing fn appended survives if it returns an error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// SeenProfiles returns the set of profile ids already shown to a user.
func (s *Store) SeenProfiles(ctx context.Context, userID string) (map[string]bool, error) {
	marks, err := s.Seen.Query(ctx, ByUser(userID))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(marks))
	for _, m := range marks {
		seen[m.ProfileID] = true
	}
	return seen, nil
}

// ListPositive returns approve/super decisions, newest first.
//
// Behavior:
//   - userID == "" lists every user's likes, otherwise only that user's.
//   - Supports cursor-based pagination via paginationToken; a token minted for
//     another user filter is rejected as invalid.
//
// Example:
//
//	store.ListPositive(ctx, "1234", nil, 20) // first 20 likes of user 1234
func (s *Store) ListPositive(
	ctx context.Context,
	userID string,
	paginationToken *string,
	limit int,
) ([]db.Decision, *string, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}
	if cursor.LastID > 0 && cursor.UserID != userID {
		return nil, nil, pagination.ErrTokenMismatch
	}

	query := Filter{UserID: userID}.Positive().
		apply(s.db.WithContext(ctx).Model(&db.Decision{})).
		Order("id DESC").
		Limit(limit + 1)
	if cursor.LastID > 0 {
		query = query.Where("id < ?", cursor.LastID)
	}

	var decisions []db.Decision
	if err := query.Find(&decisions).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(decisions) > limit {
		last := decisions[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{LastID: last.ID, UserID: userID})
		nextToken = &token
		decisions = decisions[:limit]
	}
	return decisions, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
