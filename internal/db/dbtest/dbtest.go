// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/npc-swipe/internal/db"
)

// Open spins up an in-memory SQLite DB private to the test and applies migrations.
//
// The pool is pinned to one connection: every connection to ":memory:" is a
// separate database, and a single connection keeps transactions honest.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// SeedProfiles inserts bare profiles with the given ids.
func SeedProfiles(t testing.TB, database *gorm.DB, ids ...string) []db.Profile {
	t.Helper()
	profiles := make([]db.Profile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, db.Profile{ID: id, Name: strings.ToUpper(id), Bio: "bio of " + id})
	}
	if len(profiles) > 0 {
		require.NoError(t, database.Create(&profiles).Error)
	}
	return profiles
}
