package notify

import (
	"github.com/oggyb/npc-swipe/internal/db"
)

// Kind names what the chat surface is asked to do.
type Kind string

const (
	KindPresentCard     Kind = "present_card"
	KindPresentTerminal Kind = "present_terminal"
	KindAnnounceMatch   Kind = "announce_match"
)

// Reason explains a terminal message.
type Reason string

const (
	ReasonNoMoreProfiles Reason = "no_more_profiles"
	ReasonSessionAbsent  Reason = "session_absent"
)

// Obligation is a request for the chat surface. The core never renders
// anything itself; it hands these back and the caller delivers them.
type Obligation struct {
	Kind      Kind           `json:"kind"`
	UserID    string         `json:"user_id"`
	ProfileID string         `json:"profile_id,omitempty"`
	Profile   *db.Profile    `json:"profile,omitempty"`
	Position  int            `json:"position,omitempty"`
	Total     int            `json:"total,omitempty"`
	Reason    Reason         `json:"reason,omitempty"`
	Origin    db.MatchOrigin `json:"origin,omitempty"`
}

// Card asks the surface to show a profile card.
func Card(userID string, p *db.Profile, position, total int) Obligation {
	return Obligation{Kind: KindPresentCard, UserID: userID, ProfileID: p.ID, Profile: p, Position: position, Total: total}
}

// Terminal asks the surface to tell the user there is nothing to page through.
func Terminal(userID string, reason Reason) Obligation {
	return Obligation{Kind: KindPresentTerminal, UserID: userID, Reason: reason}
}

// Match asks the surface to broadcast a match announcement.
func Match(userID, profileID string, origin db.MatchOrigin) Obligation {
	return Obligation{Kind: KindAnnounceMatch, UserID: userID, ProfileID: profileID, Origin: origin}
}
