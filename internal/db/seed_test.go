package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/npc-swipe/internal/catalog"
	"github.com/oggyb/npc-swipe/internal/db"
	"github.com/oggyb/npc-swipe/internal/db/dbtest"
)

func TestSeedTestDataReplacesEverything(t *testing.T) {
	database := dbtest.Open(t)
	dbtest.SeedProfiles(t, database, "stale")
	require.NoError(t, database.Create(&db.Decision{UserID: "u1", ProfileID: "stale", Kind: db.KindApprove}).Error)

	require.NoError(t, db.SeedTestData(database))

	var profiles []db.Profile
	require.NoError(t, database.Order("id").Find(&profiles).Error)
	require.Len(t, profiles, 5)
	for _, p := range profiles {
		assert.NoError(t, catalog.Validate(&p), p.ID)
		assert.Equal(t, catalog.Slug(p.Name), p.ID)
	}

	var decisions int64
	require.NoError(t, database.Model(&db.Decision{}).Count(&decisions).Error)
	assert.Zero(t, decisions)
}
