package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/npc-swipe/internal/db"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
)

// Catalog is the keyed store of NPC profiles.
// Writes are rare; every mutation goes straight to the profiles table.
type Catalog struct {
	db *gorm.DB
}

// New creates a catalog bound to the given DB connection.
func New(database *gorm.DB) *Catalog {
	return &Catalog{db: database}
}

// WithTx returns a catalog that runs inside the given transaction.
func (c *Catalog) WithTx(tx *gorm.DB) *Catalog {
	return &Catalog{db: tx}
}

// ProfileInput carries the fields an operator supplies when creating a profile.
type ProfileInput struct {
	Name         string   `json:"name"`
	Age          string   `json:"age"`
	Bio          string   `json:"bio"`
	Tags         []string `json:"tags"`
	Rating       *int     `json:"rating"`
	RatingReason string   `json:"rating_reason"`
	Image        string   `json:"image"`
}

// ProfilePatch updates individual fields. Nil fields are left alone.
// ClearRating drops both rating and reason.
type ProfilePatch struct {
	Name         *string   `json:"name"`
	Age          *string   `json:"age"`
	Bio          *string   `json:"bio"`
	Tags         *[]string `json:"tags"`
	Rating       *int      `json:"rating"`
	RatingReason *string   `json:"rating_reason"`
	ClearRating  bool      `json:"clear_rating"`
	Image        *string   `json:"image"`
}

// Get looks a profile up by id.
func (c *Catalog) Get(ctx context.Context, id string) (*db.Profile, error) {
	var p db.Profile
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %q: %w", id, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every profile in creation order.
func (c *Catalog) List(ctx context.Context) ([]db.Profile, error) {
	var profiles []db.Profile
	err := c.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&profiles).Error
	return profiles, err
}

// IDs returns every profile id in creation order.
func (c *Catalog) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.db.WithContext(ctx).Model(&db.Profile{}).Order("created_at ASC, id ASC").Pluck("id", &ids).Error
	return ids, err
}

// Create validates the input, derives the id from the name and inserts the
// profile. A name whose slug is already taken is rejected.
func (c *Catalog) Create(ctx context.Context, in ProfileInput) (*db.Profile, error) {
	p := &db.Profile{
		Name:         strings.TrimSpace(in.Name),
		Age:          strings.TrimSpace(in.Age),
		Bio:          strings.TrimSpace(in.Bio),
		Rating:       in.Rating,
		RatingReason: strings.TrimSpace(in.RatingReason),
		Image:        strings.TrimSpace(in.Image),
	}
	p.SetTags(trimAll(in.Tags))
	if err := Validate(p); err != nil {
		return nil, err
	}
	p.ID = Slug(p.Name)

	var exists int64
	if err := c.db.WithContext(ctx).Model(&db.Profile{}).Where("id = ?", p.ID).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("profile %q: %w", p.ID, svcErr.ErrAlreadyExists)
	}

	if err := c.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// Upsert writes a whole profile record. An empty id is derived from the name;
// a given id is normalised to its slug.
func (c *Catalog) Upsert(ctx context.Context, p *db.Profile) error {
	if err := Validate(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = Slug(p.Name)
	} else if p.ID = Slug(p.ID); p.ID == "" {
		return svcErr.Invalid("id", "must contain at least one letter or digit")
	}

	var existing db.Profile
	err := c.db.WithContext(ctx).Select("created_at").Where("id = ?", p.ID).First(&existing).Error
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	return c.db.WithContext(ctx).Save(p).Error
}

// Update applies a patch to one profile and returns the result.
// The id never changes, even when the name does.
func (c *Catalog) Update(ctx context.Context, id string, patch ProfilePatch) (*db.Profile, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Age != nil {
		p.Age = strings.TrimSpace(*patch.Age)
	}
	if patch.Bio != nil {
		p.Bio = strings.TrimSpace(*patch.Bio)
	}
	if patch.Tags != nil {
		p.SetTags(trimAll(*patch.Tags))
	}
	if patch.ClearRating {
		p.Rating = nil
		p.RatingReason = ""
	}
	if patch.Rating != nil {
		p.Rating = patch.Rating
	}
	if patch.RatingReason != nil {
		p.RatingReason = strings.TrimSpace(*patch.RatingReason)
	}
	if patch.Image != nil {
		p.Image = strings.TrimSpace(*patch.Image)
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := c.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

// Delete removes one profile. It reports false when the id was unknown.
// Ledger rows are not touched here; see the swipe service for the cascade.
func (c *Catalog) Delete(ctx context.Context, id string) (bool, error) {
	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(&db.Profile{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
