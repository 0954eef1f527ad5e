package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DecisionKind is what a user (or a profile, for signals) did with a card.
type DecisionKind string

const (
	KindReject  DecisionKind = "reject"
	KindApprove DecisionKind = "approve"
	KindSuper   DecisionKind = "super"
)

// Valid reports whether k is one of the known decision kinds.
func (k DecisionKind) Valid() bool {
	switch k {
	case KindReject, KindApprove, KindSuper:
		return true
	}
	return false
}

// Positive reports whether k expresses interest (approve or super).
func (k DecisionKind) Positive() bool {
	return k == KindApprove || k == KindSuper
}

// PositiveKinds is the filter set used by mutual-interest lookups.
var PositiveKinds = []DecisionKind{KindApprove, KindSuper}

// MatchOrigin tells how a match came to be.
type MatchOrigin string

const (
	OriginOperator MatchOrigin = "operator"
	OriginMutual   MatchOrigin = "mutual"
)

// Profile is an NPC card. ID is the slug derived from Name.
type Profile struct {
	ID           string         `gorm:"primaryKey;size:128" json:"id" yaml:"id"`
	Name         string         `gorm:"size:128;not null" json:"name" yaml:"name"`
	Age          string         `gorm:"size:32" json:"age,omitempty" yaml:"age,omitempty"`
	Bio          string         `gorm:"type:text;not null" json:"bio" yaml:"bio"`
	Tags         datatypes.JSON `json:"tags,omitempty" yaml:"-"`
	Rating       *int           `json:"rating,omitempty" yaml:"rating,omitempty"`
	RatingReason string         `gorm:"type:text" json:"rating_reason,omitempty" yaml:"rating_reason,omitempty"`
	Image        string         `gorm:"size:512" json:"image,omitempty" yaml:"image,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at" yaml:"-"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at" yaml:"-"`
}

// TagList decodes the tags column. A malformed column reads as no tags.
func (p *Profile) TagList() []string {
	if len(p.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(p.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// SetTags stores tags with duplicates and blanks removed, keeping first-seen order.
func (p *Profile) SetTags(tags []string) {
	seen := make(map[string]struct{}, len(tags))
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		clean = append(clean, t)
	}
	b, _ := json.Marshal(clean)
	p.Tags = datatypes.JSON(b)
}

// Decision is one swipe by a user on a profile.
//
// Indexes:
//   - idx_decision_user_profile(user_id, profile_id, kind)
//     mutual-interest lookups and per-user reset.
//   - idx_decision_kind_created(kind, created_at DESC)
//     likes listing, newest first.
type Decision struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string       `gorm:"size:64;not null;index:idx_decision_user_profile,priority:1" json:"user_id"`
	ProfileID string       `gorm:"size:128;not null;index:idx_decision_user_profile,priority:2;index:idx_decision_profile" json:"profile_id"`
	Kind      DecisionKind `gorm:"size:16;not null;index:idx_decision_user_profile,priority:3;index:idx_decision_kind_created,priority:1" json:"kind"`
	CreatedAt time.Time    `gorm:"autoCreateTime;index:idx_decision_kind_created,priority:2,sort:desc" json:"created_at"`
}

// SeenMark suppresses a profile from future recording sessions of a user.
// Composite PK makes marking idempotent.
type SeenMark struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	ProfileID string    `gorm:"primaryKey;size:128;index" json:"profile_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MatchEvent is a confirmed match. Duplicates are allowed.
type MatchEvent struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	UserID    string      `gorm:"size:64;not null;index:idx_match_user_profile,priority:1" json:"user_id"`
	ProfileID string      `gorm:"size:128;not null;index:idx_match_user_profile,priority:2" json:"profile_id"`
	Origin    MatchOrigin `gorm:"size:16;not null" json:"origin"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate assigns a random id so callers never have to.
func (m *MatchEvent) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ProfileSignal is interest the profile side shows in a user. Only operators create these.
type ProfileSignal struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID string       `gorm:"size:128;not null;index:idx_signal_profile_user,priority:1" json:"profile_id"`
	UserID    string       `gorm:"size:64;not null;index:idx_signal_profile_user,priority:2" json:"user_id"`
	Kind      DecisionKind `gorm:"size:16;not null" json:"kind"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// AllModels lists every table the service owns, in migration order.
func AllModels() []any {
	return []any{&Profile{}, &Decision{}, &SeenMark{}, &MatchEvent{}, &ProfileSignal{}}
}
