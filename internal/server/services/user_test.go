package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/server/config"

	_ "modernc.org/sqlite"
)

func setupUserDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash BLOB NOT NULL,
  created_at TIMESTAMP NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func newUserService(t *testing.T) *UserService {
	t.Helper()
	cfg := &config.Config{
		SecretKey:                   "test-secret",
		AccessTokenValidityDuration: time.Minute,
	}
	return NewUserService(setupUserDB(t), &testRepoManager{}, &recordingSink{}, cfg)
}

func TestUserServiceRegisterAndLogin(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "Alice@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, token)

	// token round-trips to the user id
	uid, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)

	_, token2, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, token2)
}

func TestUserServiceRegisterValidation(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "not-an-email", "longenough")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, _, err = svc.Register(ctx, "bob@example.com", "short")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, _, err = svc.Register(ctx, "bob@example.com", "longenough")
	require.NoError(t, err)

	// duplicate email
	_, _, err = svc.Register(ctx, "bob@example.com", "longenough")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestUserServiceLoginRejectsBadCredentials(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "carol@example.com", "password123")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "carol@example.com", "wrong password")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, _, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestUserServiceVerifyTokenRejectsGarbage(t *testing.T) {
	svc := newUserService(t)

	_, err := svc.VerifyToken("not.a.token")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
