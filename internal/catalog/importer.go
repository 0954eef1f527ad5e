package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oggyb/npc-swipe/internal/db"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
)

// importRecord is one NPC in an import file. YAML is a superset of JSON, so
// exported npcs.json files load as-is; the legacy Portuguese keys are accepted too.
type importRecord struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Nome         string   `yaml:"nome"`
	Age          string   `yaml:"age"`
	Idade        string   `yaml:"idade"`
	Bio          string   `yaml:"bio"`
	Tags         []string `yaml:"tags"`
	Rating       *int     `yaml:"rating"`
	RatingReason string   `yaml:"rating_reason"`
	Image        string   `yaml:"image"`
}

func (r importRecord) profile() *db.Profile {
	p := &db.Profile{
		ID:           r.ID,
		Name:         firstNonEmpty(r.Name, r.Nome),
		Age:          firstNonEmpty(r.Age, r.Idade),
		Bio:          r.Bio,
		Rating:       r.Rating,
		RatingReason: r.RatingReason,
		Image:        r.Image,
	}
	p.SetTags(r.Tags)
	return p
}

// ImportReport summarises one import run.
type ImportReport struct {
	Imported int
	Skipped  []ImportSkip
}

// ImportSkip names a record that was not imported and why.
type ImportSkip struct {
	Index  int
	Name   string
	Reason string
}

// ImportFile loads profiles from a YAML or JSON file. See Import.
func (c *Catalog) ImportFile(ctx context.Context, path string) (*ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return c.Import(ctx, f)
}

// Import upserts every valid record from r. Invalid records are reported and
// skipped; only storage failures abort the run. Missing ids are derived from names.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (*ImportReport, error) {
	var records []importRecord
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return &ImportReport{}, nil
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	report := &ImportReport{}
	for i, rec := range records {
		p := rec.profile()
		err := c.Upsert(ctx, p)
		if err != nil && !errors.Is(err, svcErr.ErrInvalidInput) {
			return report, fmt.Errorf("failed to import %q: %w", p.Name, err)
		}
		if err != nil {
			report.Skipped = append(report.Skipped, ImportSkip{Index: i, Name: p.Name, Reason: err.Error()})
			continue
		}
		report.Imported++
	}
	return report, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
