package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainPolicy(t *testing.T) {
	p := DomainPolicy{Domain: "seiei.ac.jp"}
	tests := []struct {
		email string
		want  string
	}{
		{"tanaka@seiei.ac.jp", RoleAdmin},
		{"Tanaka@SEIEI.ac.jp", RoleAdmin},
		{"2024001@seiei.ac.jp", RoleMember},
		{"tanaka@example.com", RoleMember},
		{"tanaka@sub.seiei.ac.jp", RoleMember},
		{"not-an-email", RoleMember},
		{"@seiei.ac.jp", RoleMember},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ClassifyAccount(tt.email))
		})
	}
	assert.Equal(t, RoleMember, DomainPolicy{}.ClassifyAccount("tanaka@seiei.ac.jp"))
}

func TestPasswordHashing(t *testing.T) {
	_, err := HashPassword("12345")
	assert.True(t, IsValidation(err))

	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.NoError(t, CheckPassword(hash, "secret1"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrUnauthenticated)
	assert.ErrorIs(t, CheckPassword("", "secret1"), ErrUnauthenticated)
}

func TestPrincipalOwns(t *testing.T) {
	id := int64(7)
	other := int64(8)
	assert.True(t, Principal{MemberID: 7}.Owns(&id))
	assert.False(t, Principal{MemberID: 7}.Owns(&other))
	assert.False(t, Principal{MemberID: 7}.Owns(nil))
	assert.False(t, Principal{}.Owns(nil))
	assert.True(t, System.Owns(nil))
	assert.True(t, Principal{}.Anonymous())
	assert.False(t, System.Anonymous())
}

func TestLoginAndSession(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m, err := mgr.CreateMember(ctx, System, MemberInput{Name: "Alice", StudentNumber: "S001", Email: "alice@example.com"}, "secret1", "")
	require.NoError(t, err)

	_, _, err = mgr.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, _, err = mgr.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	s, who, err := mgr.Login(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, who.ID)
	assert.Len(t, s.Token, 36)
	assert.Equal(t, fixedClock(testToday)().Add(DefaultSessionTTL).UTC(), s.ExpiresAt)

	got, err := mgr.Authenticate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	require.NoError(t, mgr.Logout(ctx, s.Token))
	_, err = mgr.Authenticate(ctx, s.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestExpiredSessionIsRejected(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	m := addMember(t, db, "Alice", "S001")
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)

	s, err := db.CreateSession(ctx, m.ID, now, time.Hour)
	require.NoError(t, err)
	_, err = db.SessionMember(ctx, s.Token, now.Add(30*time.Minute))
	require.NoError(t, err)
	_, err = db.SessionMember(ctx, s.Token, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// The expired row was removed on sight.
	_, err = db.SessionMember(ctx, s.Token, now)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = db.CreateSession(ctx, 999, now, time.Hour)
	assert.True(t, IsNotFound(err))
}

func TestPurgeSessions(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	m := addMember(t, db, "Alice", "S001")
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	_, err := db.CreateSession(ctx, m.ID, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = db.CreateSession(ctx, m.ID, now, time.Hour)
	require.NoError(t, err)

	n, err := db.PurgeSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	mgr := newManager(t)
	_, err = mgr.PurgeSessions(ctx, Principal{MemberID: m.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	n, err = mgr.PurgeSessions(ctx, System)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoginWithoutPasswordNeedsSetup(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	_, err := mgr.CreateMember(ctx, System, MemberInput{Name: "Bob", StudentNumber: "S002", Email: "bob@example.com"}, "", "")
	require.NoError(t, err)

	_, _, err = mgr.Login(ctx, "bob@example.com", "whatever")
	assert.True(t, IsValidation(err))

	_, err = mgr.SetupPassword(ctx, "bob@example.com", "secret1", "secret2")
	assert.True(t, IsValidation(err))
	_, err = mgr.SetupPassword(ctx, "bob@example.com", "secret1", "secret1")
	require.NoError(t, err)
	_, err = mgr.SetupPassword(ctx, "bob@example.com", "secret9", "secret9")
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = mgr.Login(ctx, "bob@example.com", "secret1")
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m, err := mgr.CreateMember(ctx, System, MemberInput{Name: "Alice", StudentNumber: "S001", Email: "alice@example.com"}, "secret1", "")
	require.NoError(t, err)

	err = mgr.ChangePassword(ctx, m.Principal(), "wrong", "newpass", "newpass")
	assert.True(t, IsValidation(err))
	err = mgr.ChangePassword(ctx, m.Principal(), "secret1", "new", "new")
	assert.True(t, IsValidation(err))
	require.NoError(t, mgr.ChangePassword(ctx, m.Principal(), "secret1", "newpass", "newpass"))

	_, _, err = mgr.Login(ctx, "alice@example.com", "newpass")
	assert.NoError(t, err)
	assert.ErrorIs(t, mgr.ChangePassword(ctx, Principal{}, "a", "b", "b"), ErrUnauthenticated)
}

func TestAutoProvisionIsOffByDefault(t *testing.T) {
	mgr := newManager(t, WithAccountPolicy(DomainPolicy{Domain: "seiei.ac.jp"}))
	_, _, err := mgr.Login(context.Background(), "sato@seiei.ac.jp", "secret1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAutoProvisionCreatesAdmin(t *testing.T) {
	mgr := newManager(t, WithAccountPolicy(DomainPolicy{Domain: "seiei.ac.jp"}), WithAutoProvision(true))
	ctx := context.Background()

	_, who, err := mgr.Login(ctx, "sato@seiei.ac.jp", "secret1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, who.Role)
	assert.Equal(t, "sato", who.Name)
	assert.Contains(t, who.StudentNumber, "ADMIN-")

	_, _, err = mgr.Login(ctx, "2024001@seiei.ac.jp", "secret1")
	assert.ErrorIs(t, err, ErrUnauthenticated, "student addresses are never provisioned")

	m, err := mgr.SetupPassword(ctx, "suzuki@seiei.ac.jp", "secret1", "secret1")
	require.NoError(t, err)
	assert.True(t, m.IsAdmin())
}

func TestMeAndRoles(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m, err := mgr.CreateMember(ctx, System, MemberInput{Name: "Alice", StudentNumber: "S001"}, "", "")
	require.NoError(t, err)

	me, err := mgr.Me(ctx, m.Principal())
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.Name)
	_, err = mgr.Me(ctx, Principal{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.ErrorIs(t, mgr.SetRole(ctx, m.Principal(), m.ID, RoleAdmin), ErrForbidden)
	require.NoError(t, mgr.SetRole(ctx, System, m.ID, RoleAdmin))
	me, err = mgr.Me(ctx, Principal{MemberID: m.ID})
	require.NoError(t, err)
	assert.True(t, me.IsAdmin())
	assert.True(t, IsValidation(mgr.SetRole(ctx, System, m.ID, "root")))
}
