package admin_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/npc-swipe/internal/app"
	"github.com/oggyb/npc-swipe/internal/auth"
	"github.com/oggyb/npc-swipe/internal/cache"
	"github.com/oggyb/npc-swipe/internal/config"
	"github.com/oggyb/npc-swipe/internal/db"
	"github.com/oggyb/npc-swipe/internal/db/dbtest"
	"github.com/oggyb/npc-swipe/internal/logger"
	"github.com/oggyb/npc-swipe/internal/service/admin"
	"github.com/oggyb/npc-swipe/internal/service/swipe"
)

const token = "op-token"

func setupHandler(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	database := dbtest.Open(t)
	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	appCtx := app.New(cfg, database, rc, logger.Discard())
	hash, err := auth.HashToken(token)
	require.NoError(t, err)
	appCtx.Operators, err = auth.NewVerifier(hash)
	require.NoError(t, err)

	r := mux.NewRouter()
	admin.NewHandler(appCtx, swipe.NewService(appCtx)).Routes(r)
	return r, database
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequiresOperatorToken(t *testing.T) {
	h, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProfileCRUD(t *testing.T) {
	h, _ := setupHandler(t)

	rec := do(t, h, http.MethodPost, "/api/profiles", map[string]any{
		"name": "Inès Moreau", "bio": "Cartographer.", "rating": 4, "rating_reason": "great maps",
		"tags": []string{"explorer"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created db.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "ines_moreau", created.ID)

	rec = do(t, h, http.MethodPost, "/api/profiles", map[string]any{"name": "Ines Moreau", "bio": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/profiles", map[string]any{"name": "Nobody", "bio": "x", "rating": 9, "rating_reason": "?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/profiles", map[string]any{"name": "X", "bio": "y", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = do(t, h, http.MethodPatch, "/api/profiles/ines_moreau", map[string]any{"bio": "Retired cartographer."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/profiles/ines_moreau", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got db.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Retired cartographer.", got.Bio)
	assert.Equal(t, []string{"explorer"}, got.TagList())

	rec = do(t, h, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Profiles []db.Profile `json:"profiles"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Profiles, 1)

	rec = do(t, h, http.MethodGet, "/api/profiles/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProfileCascades(t *testing.T) {
	h, database := setupHandler(t)
	dbtest.SeedProfiles(t, database, "grum")
	require.NoError(t, database.Create(&db.Decision{UserID: "u1", ProfileID: "grum", Kind: db.KindApprove}).Error)

	rec := do(t, h, http.MethodDelete, "/api/profiles/grum", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report swipe.RemovalReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, int64(1), report.Decisions)

	var n int64
	require.NoError(t, database.Model(&db.Decision{}).Where("profile_id = ?", "grum").Count(&n).Error)
	assert.Zero(t, n)

	rec = do(t, h, http.MethodDelete, "/api/profiles/grum", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLikesApprovalsAndReset(t *testing.T) {
	h, database := setupHandler(t)
	dbtest.SeedProfiles(t, database, "lya")
	require.NoError(t, database.Create(&[]db.Decision{
		{UserID: "u1", ProfileID: "lya", Kind: db.KindApprove},
		{UserID: "u2", ProfileID: "lya", Kind: db.KindSuper},
		{UserID: "u2", ProfileID: "lya", Kind: db.KindReject},
	}).Error)

	rec := do(t, h, http.MethodGet, "/api/likes?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Likes         []db.Decision `json:"likes"`
		NextPageToken *string       `json:"next_page_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Likes, 1)
	assert.Equal(t, "u2", page.Likes[0].UserID)
	require.NotNil(t, page.NextPageToken)

	rec = do(t, h, http.MethodGet, "/api/likes?user_id=u1&page_token="+*page.NextPageToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a token is bound to its user filter")

	rec = do(t, h, http.MethodGet, "/api/likes?limit=-2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/likes?limit=9223372036854775807", nil)
	require.Equal(t, http.StatusOK, rec.Code, "huge limits are clamped")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Likes, 2)
	assert.Nil(t, page.NextPageToken)

	rec = do(t, h, http.MethodGet, "/api/profiles/lya/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&count))
	assert.Equal(t, int64(2), count.Count)

	rec = do(t, h, http.MethodPost, "/api/users/u2/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset swipe.ResetReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reset))
	assert.Equal(t, int64(2), reset.Decisions)
}
