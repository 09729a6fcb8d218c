package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pharmacy_inventory/internal/model"
	"pharmacy_inventory/internal/store"
)

func setup(t *testing.T) *Service {
	t.Helper()

	st, err := store.Open(store.Config{DSN: filepath.Join(t.TempDir(), "auth.db")})
	require.NoError(t, err)
	require.NoError(t, st.Initialize(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st, NewPasswordHasherWithCost(bcrypt.MinCost), NewTokenManager("test-secret", time.Hour, "pharmacy-test"))
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasherWithCost(bcrypt.MinCost)

	hash1, err := h.Hash("samepassword")
	require.NoError(t, err)
	hash2, err := h.Hash("samepassword")
	require.NoError(t, err)

	assert.NotEqual(t, "samepassword", hash1)
	assert.NotEqual(t, hash1, hash2, "salted hashes differ")
	assert.True(t, h.Verify("samepassword", hash1))
	assert.True(t, h.Verify("samepassword", hash2))
	assert.False(t, h.Verify("samepassword1", hash1))
	assert.False(t, h.Verify("", hash1))
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("secret", time.Minute, "pharmacy")
	u := &model.User{ID: 7, Username: "amy", Role: model.RolePharmacist}

	token, err := m.Issue(u)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "amy", claims.Username)
	assert.Equal(t, model.RolePharmacist, claims.Role)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, int64(60), m.TTL())

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenManager("other", time.Minute, "pharmacy").Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewTokenManager("secret", time.Minute, "someone-else").Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := NewTokenManager("secret", -time.Minute, "pharmacy").Issue(u)
		require.NoError(t, err)
		_, err = m.Parse(expired)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestSignup(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	u, err := svc.Signup(ctx, SignupInput{Username: " amy ", Email: "amy@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "amy", u.Username)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.NotEqual(t, "password123", u.PasswordDigest)

	tests := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"duplicate username", SignupInput{Username: "amy", Email: "x@example.com", Password: "password123"}, ErrUserExists},
		{"duplicate email", SignupInput{Username: "bob", Email: "amy@example.com", Password: "password123"}, ErrUserExists},
		{"short username", SignupInput{Username: "ab", Email: "ab@example.com", Password: "password123"}, ErrInvalidUsername},
		{"bad email", SignupInput{Username: "carol", Email: "carol", Password: "password123"}, ErrInvalidEmail},
		{"weak password", SignupInput{Username: "carol", Email: "carol@example.com", Password: "short"}, ErrWeakPassword},
		{"long password", SignupInput{Username: "carol", Email: "carol@example.com", Password: strings.Repeat("p", 73)}, ErrPasswordTooLong},
		{"unknown role", SignupInput{Username: "carol", Email: "carol@example.com", Password: "password123", Role: "admin"}, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	_, err := svc.Signup(ctx, SignupInput{Username: "pete", Email: "pete@example.com", Password: "correct-horse", Role: model.RolePharmacist})
	require.NoError(t, err)

	sess, err := svc.Login(ctx, "pete", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "pete", sess.Username)
	assert.Equal(t, model.RolePharmacist, sess.Role)
	assert.Equal(t, "Bearer", sess.TokenType)

	claims, err := svc.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "pete", claims.Username)

	_, err = svc.Login(ctx, "pete", "wrong-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
