package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypeshelf/hypeshelf/internal/authz"
	"github.com/hypeshelf/hypeshelf/internal/handler"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/model"
	sqliteRepo "github.com/hypeshelf/hypeshelf/internal/repository/sqlite"
	"github.com/hypeshelf/hypeshelf/internal/service"
	"github.com/hypeshelf/hypeshelf/internal/upload"
)

// =============================================================================
// Fixture
// =============================================================================

const (
	testBaseURL  = "http://api.test"
	testMaxBytes = 64
)

// Test requests name their caller in these headers instead of carrying a
// session token; token handling is covered in package auth.
const (
	subjectHeader = "X-Test-Subject"
	nameHeader    = "X-Test-Name"
)

type testAPI struct {
	router http.Handler
	db     *sqliteRepo.DB
}

func withTestCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := r.Header.Get(subjectHeader); sub != "" {
			caller := identity.Caller{Subject: sub, Name: r.Header.Get(nameHeader)}
			r = r.WithContext(identity.WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	policy, err := authz.New(logger)
	require.NoError(t, err)

	gw := service.Gateway{Tx: db, Resolver: identity.NewResolver(db, logger), Policy: policy}
	recs := handler.NewRecommendationHandler(service.NewRecommendationService(gw, db, logger), logger)
	admin := handler.NewAdminHandler(service.NewAdminService(gw, db, logger), logger)
	uploads := handler.NewUploadHandler(service.NewUploadService(gw, db, upload.NewMemoryStore(), service.UploadConfig{
		BaseURL:   testBaseURL,
		TicketTTL: time.Minute,
		MaxBytes:  testMaxBytes,
	}, logger), testMaxBytes, logger)

	r := chi.NewRouter()
	r.Use(withTestCaller)
	r.Get("/api/recommendations/public", recs.HandlePublic)
	r.Get("/api/recommendations", recs.HandleList)
	r.Post("/api/recommendations", recs.HandleCreate)
	r.Put("/api/recommendations/{id}", recs.HandleUpdate)
	r.Delete("/api/recommendations/{id}", recs.HandleDelete)
	r.Put("/api/recommendations/{id}/staff-pick", recs.HandleStaffPick)
	r.Get("/api/genres", recs.HandleGenres)
	r.Get("/api/me/role", recs.HandleWhoAmI)
	r.Post("/api/uploads", uploads.HandleIssueTicket)
	r.Post("/api/uploads/{token}", uploads.HandleUpload)
	r.Get("/api/images/{ref}", uploads.HandleImage)
	r.Get("/api/images/{ref}/url", uploads.HandleImageURL)
	r.Get("/api/admin/users", admin.HandleListUsers)
	r.Put("/api/admin/users/{id}/role", admin.HandleChangeRole)
	r.Post("/api/admin/maintenance/cleanup-users", admin.HandleCleanupUsers)
	r.Post("/api/admin/maintenance/migrate-users", admin.HandleMigrateUsers)

	return &testAPI{router: r, db: db}
}

// do sends a request as subject ("" for anonymous) and returns the recorder.
func (a *testAPI) do(t *testing.T, method, path, subject, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set(subjectHeader, subject)
		req.Header.Set(nameHeader, strings.ToUpper(subject[:1])+subject[1:])
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) seedAdmin(t *testing.T, subject string) model.User {
	t.Helper()
	u := model.User{ExternalID: subject, Role: model.RoleAdmin, DisplayName: "Admin"}
	require.NoError(t, a.db.CreateUser(context.Background(), &u))
	return u
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

const heatJSON = `{"title":"Heat","genre":"Action","link":"https://example.com/heat","blurb":"A heist classic."}`

func (a *testAPI) create(t *testing.T, subject, body string) model.Recommendation {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/recommendations", subject, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.Recommendation](t, rr)
}

// =============================================================================
// Recommendations
// =============================================================================

func TestCreate(t *testing.T) {
	api := newTestAPI(t)

	t.Run("created with author", func(t *testing.T) {
		rec := api.create(t, "alice", heatJSON)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "alice", rec.AuthorID)
		assert.Equal(t, "Alice", rec.AuthorName)
		assert.False(t, rec.IsStaffPick)
	})

	t.Run("anonymous is 401", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/recommendations", "", heatJSON)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "authentication_error", decode[handler.ErrorResponse](t, rr).Error)
	})

	t.Run("malformed JSON is 400", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/recommendations", "alice", `{"title":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown field is 400", func(t *testing.T) {
		body := `{"title":"Heat","genre":"Action","link":"https://x.com","blurb":"ok","authorId":"mallory"}`
		rr := api.do(t, http.MethodPost, "/api/recommendations", "alice", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing field names the field", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/recommendations", "alice",
			`{"title":"Heat","genre":"Action","blurb":"ok"}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		resp := decode[handler.ErrorResponse](t, rr)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "link", resp.Field)
	})

	t.Run("bad genre is 400", func(t *testing.T) {
		body := strings.Replace(heatJSON, "Action", "Western", 1)
		rr := api.do(t, http.MethodPost, "/api/recommendations", "alice", body)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "genre", decode[handler.ErrorResponse](t, rr).Field)
	})

	t.Run("javascript link is 400", func(t *testing.T) {
		body := strings.Replace(heatJSON, "https://example.com/heat", "javascript:alert(1)", 1)
		rr := api.do(t, http.MethodPost, "/api/recommendations", "alice", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestPublic(t *testing.T) {
	api := newTestAPI(t)
	for range 7 {
		api.create(t, "alice", heatJSON)
	}

	rr := api.do(t, http.MethodGet, "/api/recommendations/public", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.PublicRecommendation](t, rr), service.DefaultPublicCount)
	assert.NotContains(t, rr.Body.String(), "authorId")

	rr = api.do(t, http.MethodGet, "/api/recommendations/public?count=2", "", "")
	assert.Len(t, decode[[]model.PublicRecommendation](t, rr), 2)

	rr = api.do(t, http.MethodGet, "/api/recommendations/public?count=0", "", "")
	assert.Len(t, decode[[]model.PublicRecommendation](t, rr), 1)

	rr = api.do(t, http.MethodGet, "/api/recommendations/public?count=lots", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestList(t *testing.T) {
	api := newTestAPI(t)
	api.create(t, "alice", heatJSON)
	api.create(t, "alice", strings.Replace(heatJSON, "Action", "Drama", 1))

	rr := api.do(t, http.MethodGet, "/api/recommendations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/recommendations?genre=Drama", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[service.ListAllResult](t, rr)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, model.Genre("Drama"), result.Recommendations[0].Genre)
	assert.Equal(t, "alice", result.CurrentUserID)
	assert.Equal(t, model.RoleUser, result.Role)

	rr = api.do(t, http.MethodGet, "/api/genres", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.ElementsMatch(t, []model.Genre{"Action", "Drama"}, decode[[]model.Genre](t, rr))
}

func TestUpdateAndDelete(t *testing.T) {
	api := newTestAPI(t)
	api.seedAdmin(t, "root")
	rec := api.create(t, "alice", heatJSON)
	path := "/api/recommendations/" + rec.ID
	edited := strings.Replace(heatJSON, "Heat", "Heat (1995)", 1)

	t.Run("other user is 403", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, path, "bob", edited).Code)
		assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, path, "bob", "").Code)
	})

	t.Run("author can update", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodPut, path, "alice", edited).Code)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		rr := api.do(t, http.MethodPut, "/api/recommendations/missing", "alice", edited)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decode[handler.ErrorResponse](t, rr).Error)
	})

	t.Run("admin can delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, path, "root", "").Code)
		assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, path, "root", "").Code)
	})
}

func TestStaffPick(t *testing.T) {
	api := newTestAPI(t)
	api.seedAdmin(t, "root")
	rec := api.create(t, "alice", heatJSON)
	path := "/api/recommendations/" + rec.ID + "/staff-pick"

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, path, "alice", `{"isStaffPick":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPut, path, "root", `{}`).Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodPut, path, "root", `{"isStaffPick":true}`).Code)

	got, err := api.db.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsStaffPick)
}

func TestWhoAmI(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/me/role", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()))

	rr = api.do(t, http.MethodGet, "/api/me/role", "alice", "")
	assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()), "role query must not create a record")

	api.create(t, "alice", heatJSON)
	rr = api.do(t, http.MethodGet, "/api/me/role", "alice", "")
	info := decode[identity.RoleInfo](t, rr)
	assert.Equal(t, model.RoleUser, info.Role)
	assert.NotEmpty(t, info.UserID)
}

// =============================================================================
// Admin
// =============================================================================

func TestAdmin(t *testing.T) {
	api := newTestAPI(t)
	root := api.seedAdmin(t, "root")
	api.create(t, "alice", heatJSON)

	t.Run("non-admin is 403", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/admin/users", "alice", "").Code)
		assert.Equal(t, http.StatusForbidden,
			api.do(t, http.MethodPost, "/api/admin/maintenance/cleanup-users", "alice", "").Code)
	})

	users := decode[[]model.User](t, api.do(t, http.MethodGet, "/api/admin/users", "root", ""))
	require.Len(t, users, 2)
	var alice model.User
	for _, u := range users {
		if u.ExternalID == "alice" {
			alice = u
		}
	}
	require.NotEmpty(t, alice.ID)

	t.Run("promote", func(t *testing.T) {
		rr := api.do(t, http.MethodPut, "/api/admin/users/"+alice.ID+"/role", "root", `{"role":"admin"}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		change := decode[service.RoleChange](t, rr)
		assert.Equal(t, alice.ID, change.UserID)
		assert.Equal(t, model.RoleAdmin, change.Role)
	})

	t.Run("invalid role is 400", func(t *testing.T) {
		rr := api.do(t, http.MethodPut, "/api/admin/users/"+alice.ID+"/role", "root", `{"role":"owner"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("self demotion is 409", func(t *testing.T) {
		rr := api.do(t, http.MethodPut, "/api/admin/users/"+root.ID+"/role", "root", `{"role":"user"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "self_demotion", decode[handler.ErrorResponse](t, rr).Error)
	})

	t.Run("maintenance counts", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/admin/maintenance/cleanup-users", "root", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]int64{"deleted": 0}, decode[map[string]int64](t, rr))

		rr = api.do(t, http.MethodPost, "/api/admin/maintenance/migrate-users", "root", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]int64{"updated": 0}, decode[map[string]int64](t, rr))
	})
}

// =============================================================================
// Uploads
// =============================================================================

func issueTicket(t *testing.T, api *testAPI, subject string) string {
	t.Helper()
	rr := api.do(t, http.MethodPost, "/api/uploads", subject, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ticket := decode[service.UploadTicket](t, rr)
	require.True(t, strings.HasPrefix(ticket.UploadURL, testBaseURL), ticket.UploadURL)
	return strings.TrimPrefix(ticket.UploadURL, testBaseURL)
}

func postImage(api *testAPI, path, contentType string, data []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	return rr
}

func TestUploadFlow(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPost, "/api/uploads", "", "").Code)

	path := issueTicket(t, api, "alice")
	png := []byte("\x89PNG\r\n\x1a\nfake")

	rr := postImage(api, path, "image/png", png)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ref := decode[map[string]string](t, rr)["imageRef"]
	require.NotEmpty(t, ref)

	t.Run("ticket is single use", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, postImage(api, path, "image/png", png).Code)
	})

	t.Run("image is served", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/images/"+ref, "", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, png, rr.Body.Bytes())
	})

	t.Run("image url", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/images/"+ref+"/url", "", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, testBaseURL+"/api/images/"+ref, decode[map[string]string](t, rr)["url"])
	})

	t.Run("ref can go on a recommendation", func(t *testing.T) {
		body := strings.Replace(heatJSON, `}`, `,"imageRef":"`+ref+`"}`, 1)
		rec := api.create(t, "alice", body)
		assert.Equal(t, ref, rec.ImageRef)
	})
}

func TestUploadRejects(t *testing.T) {
	api := newTestAPI(t)

	rr := postImage(api, issueTicket(t, api, "alice"), "text/html", []byte("<html>"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postImage(api, issueTicket(t, api, "alice"), "image/png", bytes.Repeat([]byte{1}, testMaxBytes+10))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/images/not-a-ref", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
