package catalog

import (
	"net/url"
	"path"
	"strings"

	"github.com/oggyb/npc-swipe/internal/db"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Validate re-checks a profile before any write, whatever the caller already did.
//
// Rules:
//   - name and bio are required.
//   - rating, when set, is within 1..5 and needs a reason; a reason needs a rating.
//   - image, when set, is an absolute http(s) URL or a relative storage path.
func Validate(p *db.Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return svcErr.Invalid("name", "is required")
	}
	if strings.TrimSpace(p.Bio) == "" {
		return svcErr.Invalid("bio", "is required")
	}
	if Slug(p.Name) == "" {
		return svcErr.Invalid("name", "must contain at least one letter or digit")
	}

	hasReason := strings.TrimSpace(p.RatingReason) != ""
	switch {
	case p.Rating != nil && (*p.Rating < MinRating || *p.Rating > MaxRating):
		return svcErr.Invalid("rating", "must be between 1 and 5")
	case p.Rating != nil && !hasReason:
		return svcErr.Invalid("rating_reason", "is required when a rating is given")
	case p.Rating == nil && hasReason:
		return svcErr.Invalid("rating", "is required when a rating reason is given")
	}

	if p.Image != "" && !validImageRef(p.Image) {
		return svcErr.Invalid("image", "must be an http(s) URL or a relative storage path")
	}
	return nil
}

// IsRemoteImage reports whether ref points at an absolute http(s) URL.
func IsRemoteImage(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validImageRef(ref string) bool {
	if IsRemoteImage(ref) {
		return true
	}
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") || strings.Contains(ref, "\\") {
		return false
	}
	clean := path.Clean(ref)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}
