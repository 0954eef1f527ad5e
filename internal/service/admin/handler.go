// Package admin is the operator HTTP API: profile CRUD plus history reads.
package admin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/oggyb/npc-swipe/internal/app"
	"github.com/oggyb/npc-swipe/internal/catalog"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
	"github.com/oggyb/npc-swipe/internal/service/swipe"
)

const maxBodyBytes = 1 << 20

// Handler serves the admin endpoints. Every route needs the operator token as
// a bearer token.
type Handler struct {
	appCtx  *app.AppContext
	catalog *catalog.Catalog
	swipe   *swipe.Service
	log     *slog.Logger
}

// NewHandler creates the admin API on top of the catalog and the swipe service.
func NewHandler(appCtx *app.AppContext, swipeSvc *swipe.Service) *Handler {
	return &Handler{
		appCtx:  appCtx,
		catalog: catalog.New(appCtx.DB),
		swipe:   swipeSvc,
		log:     appCtx.Logger,
	}
}

// Routes mounts the admin API under /api.
func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.requireOperator)

	api.HandleFunc("/profiles", h.ListProfiles).Methods(http.MethodGet)
	api.HandleFunc("/profiles", h.CreateProfile).Methods(http.MethodPost)
	api.HandleFunc("/profiles/{id}", h.GetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}", h.UpdateProfile).Methods(http.MethodPatch)
	api.HandleFunc("/profiles/{id}", h.DeleteProfile).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{id}/approvals", h.CountApprovals).Methods(http.MethodGet)
	api.HandleFunc("/likes", h.ListLikes).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/reset", h.ResetUser).Methods(http.MethodPost)
}

// ListProfiles returns the whole catalog.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.catalog.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// GetProfile returns one profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProfile adds a profile. The id is derived from the name.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProfileInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.appCtx.Activity.Record(r.Context(), "operator", "created profile "+p.Name, "profile="+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProfile patches individual fields of a profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.appCtx.Activity.Record(r.Context(), "operator", "updated profile "+p.Name, "profile="+p.ID)
	writeJSON(w, http.StatusOK, p)
}

// DeleteProfile removes a profile together with every ledger row about it.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	report, err := h.swipe.RemoveProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CountApprovals returns how many approve/super decisions a profile received.
func (h *Handler) CountApprovals(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := h.swipe.CountApprovals(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile_id": id, "count": n})
}

// ListLikes pages through approve/super decisions, optionally for one user.
//
// Query parameters: user_id, page_token, limit.
func (h *Handler) ListLikes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(w, svcErr.Invalid("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}
	var token *string
	if t := q.Get("page_token"); t != "" {
		token = &t
	}

	likes, next, err := h.swipe.ListLikes(r.Context(), q.Get("user_id"), token, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"likes": likes, "next_page_token": next})
}

// ResetUser wipes one player's history.
func (h *Handler) ResetUser(w http.ResponseWriter, r *http.Request) {
	report, err := h.swipe.ResetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !h.appCtx.Operators.IsPrivileged(token) {
			h.fail(w, svcErr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := svcErr.HTTPStatus(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.log.Error("admin request failed", "err", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return svcErr.Invalid("body", "is empty")
		}
		return svcErr.Invalid("body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
