package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/npc-swipe/internal/db"
)

// ErrUnscopedRemove guards against wiping a whole ledger with an empty filter.
var ErrUnscopedRemove = errors.New("ledger: remove needs a user or profile scope")

// Filter selects ledger rows. Zero fields are ignored.
// Kinds applies to decisions and signals, Origin to matches only.
type Filter struct {
	UserID    string
	ProfileID string
	Kinds     []db.DecisionKind
	Origin    db.MatchOrigin
}

// ByUser scopes a filter to one user.
func ByUser(userID string) Filter { return Filter{UserID: userID} }

// ByProfile scopes a filter to one profile.
func ByProfile(profileID string) Filter { return Filter{ProfileID: profileID} }

// Pair scopes a filter to one (user, profile) pair.
func Pair(userID, profileID string) Filter {
	return Filter{UserID: userID, ProfileID: profileID}
}

// Positive narrows a filter to approve/super rows.
func (f Filter) Positive() Filter {
	f.Kinds = db.PositiveKinds
	return f
}

func (f Filter) scoped() bool { return f.UserID != "" || f.ProfileID != "" }

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ProfileID != "" {
		q = q.Where("profile_id = ?", f.ProfileID)
	}
	if len(f.Kinds) > 0 {
		q = q.Where("kind IN ?", f.Kinds)
	}
	if f.Origin != "" {
		q = q.Where("origin = ?", f.Origin)
	}
	return q
}

// Ledger is an append-only store of records of type T.
// Rows are never updated; Remove exists only for user resets and profile cascades.
type Ledger[T any] interface {
	Append(ctx context.Context, rec *T) error
	Query(ctx context.Context, f Filter) ([]T, error)
	Exists(ctx context.Context, f Filter) (bool, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Remove(ctx context.Context, f Filter) (int64, error)
}

// gormLedger implements Ledger on one gorm table.
type gormLedger[T any] struct {
	db *gorm.DB
	// idempotent appends ignore primary key conflicts (seen marks).
	idempotent bool
}

func newGormLedger[T any](database *gorm.DB, idempotent bool) *gormLedger[T] {
	return &gormLedger[T]{db: database, idempotent: idempotent}
}

func (l *gormLedger[T]) Append(ctx context.Context, rec *T) error {
	q := l.db.WithContext(ctx)
	if l.idempotent {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	return q.Create(rec).Error
}

func (l *gormLedger[T]) Query(ctx context.Context, f Filter) ([]T, error) {
	var rows []T
	err := f.apply(l.db.WithContext(ctx).Model(new(T))).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (l *gormLedger[T]) Exists(ctx context.Context, f Filter) (bool, error) {
	n, err := l.Count(ctx, f)
	return n > 0, err
}

func (l *gormLedger[T]) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	err := f.apply(l.db.WithContext(ctx).Model(new(T))).Count(&n).Error
	return n, err
}

func (l *gormLedger[T]) Remove(ctx context.Context, f Filter) (int64, error) {
	if !f.scoped() {
		return 0, ErrUnscopedRemove
	}
	res := f.apply(l.db.WithContext(ctx)).Delete(new(T))
	return res.RowsAffected, res.Error
}
