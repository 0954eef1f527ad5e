package db

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

func intPtr(v int) *int { return &v }

// demoProfiles is the development catalog.
func demoProfiles() []Profile {
	profiles := []Profile{
		{ID: "lya", Name: "Lya", Age: "27", Bio: "Cartographer of places that do not exist yet."},
		{ID: "alex_petrov", Name: "Alex Petrov", Age: "31", Bio: "Ex-mercenary, current baker. Both jobs involve knives."},
		{ID: "curto_circuito", Name: "Curto Circuito", Age: "??", Bio: "Sentient toaster. Looking for someone warm.",
			Rating: intPtr(5), RatingReason: "Never burns the bread."},
		{ID: "ines_moreau", Name: "Inês Moreau", Age: "24", Bio: "Duelist by day, poet by night. Mostly bad poems."},
		{ID: "grum", Name: "Grum", Age: "112", Bio: "Bridge troll. Strong opinions about tolls.",
			Rating: intPtr(2), RatingReason: "Charges for the first date."},
	}
	tags := [][]string{
		{"explorer", "maps"},
		{"baker", "retired"},
		{"robot", "kitchen"},
		{"duel", "poetry"},
		{"troll", "bridges"},
	}
	for i := range profiles {
		profiles[i].SetTags(tags[i])
	}
	return profiles
}

// SeedTestData resets the database and populates it with a small demo catalog.
//
// Behavior:
//  1. Clears every ledger table and the catalog.
//  2. Inserts the demo profiles.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"decisions", "seen_marks", "match_events", "profile_signals", "profiles"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		log.Println("Cleared existing data")

		profiles := demoProfiles()
		if err := tx.Create(&profiles).Error; err != nil {
			return fmt.Errorf("failed to seed profiles: %w", err)
		}
		log.Printf("Seeded %d profiles.", len(profiles))
		return nil
	})
}
