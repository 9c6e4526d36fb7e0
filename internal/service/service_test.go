package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"testing"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/authz"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/repository"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// mockStore implements every repository interface in memory. WithinTx takes
// a snapshot and restores it when fn fails, so rollback behaviour can be
// asserted the same way as against SQLite.

type mockStore struct {
	recs   []model.Recommendation // insertion order
	users  map[string]model.User
	blobs  map[string]model.Blob
	nextID int
}

var (
	_ repository.RecommendationRepository = (*mockStore)(nil)
	_ repository.UserRepository           = (*mockStore)(nil)
	_ repository.BlobRepository           = (*mockStore)(nil)
	_ repository.Transactor               = (*mockStore)(nil)
)

func newMockStore() *mockStore {
	return &mockStore{
		users: make(map[string]model.User),
		blobs: make(map[string]model.Blob),
	}
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	recs := slices.Clone(m.recs)
	users := maps.Clone(m.users)
	blobs := maps.Clone(m.blobs)

	if err := fn(ctx); err != nil {
		m.recs, m.users, m.blobs = recs, users, blobs
		return err
	}
	return nil
}

func (m *mockStore) Create(_ context.Context, rec *model.Recommendation) error {
	rec.ID = m.id("rec")
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *mockStore) find(id string) int {
	return slices.IndexFunc(m.recs, func(r model.Recommendation) bool { return r.ID == id })
}

func (m *mockStore) GetByID(_ context.Context, id string) (*model.Recommendation, error) {
	i := m.find(id)
	if i < 0 {
		return nil, apperror.NotFound("recommendation", id)
	}
	rec := m.recs[i]
	return &rec, nil
}

func (m *mockStore) List(_ context.Context, opts repository.ListOptions) ([]model.Recommendation, error) {
	out := make([]model.Recommendation, 0, len(m.recs))
	for i := len(m.recs) - 1; i >= 0; i-- {
		if opts.Genre != "" && m.recs[i].Genre != opts.Genre {
			continue
		}
		out = append(out, m.recs[i])
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) Patch(_ context.Context, id string, p repository.RecommendationPatch) error {
	i := m.find(id)
	if i < 0 {
		return apperror.NotFound("recommendation", id)
	}
	r := &m.recs[i]
	r.Title, r.Genre, r.Link, r.Blurb, r.ImageRef = p.Title, p.Genre, p.Link, p.Blurb, p.ImageRef
	return nil
}

func (m *mockStore) SetStaffPick(_ context.Context, id string, v bool) error {
	i := m.find(id)
	if i < 0 {
		return apperror.NotFound("recommendation", id)
	}
	m.recs[i].IsStaffPick = v
	return nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	i := m.find(id)
	if i < 0 {
		return apperror.NotFound("recommendation", id)
	}
	m.recs = slices.Delete(m.recs, i, i+1)
	return nil
}

func (m *mockStore) DistinctGenres(context.Context) ([]model.Genre, error) {
	set := make(map[model.Genre]bool)
	for _, r := range m.recs {
		set[r.Genre] = true
	}
	return slices.Sorted(maps.Keys(set)), nil
}

func (m *mockStore) CreateUser(_ context.Context, u *model.User) error {
	for _, existing := range m.users {
		if u.ExternalID != "" && existing.ExternalID == u.ExternalID {
			return apperror.Conflict("user", u.ExternalID)
		}
	}
	u.ID = m.id("user")
	m.users[u.ID] = *u
	return nil
}

func (m *mockStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (m *mockStore) GetUserByExternalID(_ context.Context, externalID string) (*model.User, error) {
	for _, u := range m.users {
		if u.ExternalID == externalID {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", externalID)
}

func (m *mockStore) ListUsers(context.Context) ([]model.User, error) {
	ids := slices.Sorted(maps.Keys(m.users))
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.users[id])
	}
	return out, nil
}

func (m *mockStore) SetRole(_ context.Context, id string, role model.Role) error {
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Role = role
	m.users[id] = u
	return nil
}

func (m *mockStore) DeleteUsersWithoutExternalID(context.Context) (int64, error) {
	var n int64
	for id, u := range m.users {
		if u.ExternalID == "" {
			delete(m.users, id)
			n++
		}
	}
	return n, nil
}

func (m *mockStore) AssignRoleWhereMissing(_ context.Context, role model.Role) (int64, error) {
	var n int64
	for id, u := range m.users {
		if u.Role == "" {
			u.Role = role
			m.users[id] = u
			n++
		}
	}
	return n, nil
}

func (m *mockStore) PutBlob(_ context.Context, b *model.Blob) error {
	b.Ref = m.id("blob")
	m.blobs[b.Ref] = *b
	return nil
}

func (m *mockStore) GetBlob(_ context.Context, ref string) (*model.Blob, error) {
	b, ok := m.blobs[ref]
	if !ok {
		return nil, apperror.NotFound("image", ref)
	}
	return &b, nil
}

// userByExternalID is a test shortcut that fails when no record exists.
func (m *mockStore) userByExternalID(t *testing.T, externalID string) model.User {
	t.Helper()
	u, err := m.GetUserByExternalID(context.Background(), externalID)
	if err != nil {
		t.Fatalf("no user record for %s: %v", externalID, err)
	}
	return *u
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, store *mockStore) Gateway {
	t.Helper()
	policy, err := authz.New(testLogger())
	if err != nil {
		t.Fatalf("authz.New() error = %v", err)
	}
	return Gateway{
		Tx:       store,
		Resolver: identity.NewResolver(store, testLogger()),
		Policy:   policy,
	}
}

// seedAdmin stores an admin record for caller the way the operator tool does.
func seedAdmin(t *testing.T, store *mockStore, caller identity.Caller) model.User {
	t.Helper()
	u := &model.User{ExternalID: caller.Subject, Role: model.RoleAdmin, DisplayName: caller.Name}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seeding admin: %v", err)
	}
	return *u
}

var (
	alice = identity.Caller{Subject: "github:1", Name: "Alice"}
	bob   = identity.Caller{Subject: "github:2", Name: "Bob"}
	carol = identity.Caller{Subject: "github:3", Name: "Carol"}
)

func validFields() model.RecommendationFields {
	return model.RecommendationFields{
		Title: "Heat",
		Genre: "Action",
		Link:  "https://example.com/heat",
		Blurb: "A tense heist movie with a great cast.",
	}
}
