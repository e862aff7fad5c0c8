package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "correct_horse_42"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong_password_1", hash)
	req.NoError(err)
	req.False(match)
}

func TestComparePassword_RejectsCorruptedHash(t *testing.T) {
	req := require.New(t)

	corrupted := []string{
		"not-a-hash",
		"$argon2id$v=19$m=65536,t=3,p=2$salt",
		"$argon2id$version$m=65536,t=3,p=2$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=x,t=3,p=2$c2FsdHNhbHQ$aGFzaGhhc2g",
	}
	for _, hash := range corrupted {
		_, err := ComparePassword("any_password_1", hash)
		req.Error(err, hash)
	}
}

func TestValidateCredentials(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"valid", Credentials{"alice_01", "s3cret_password"}, false},
		{"username too short", Credentials{"bob", "s3cret_password"}, true},
		{"username too long", Credentials{strings.Repeat("a", 21), "s3cret_password"}, true},
		{"username with space", Credentials{"alice smith", "s3cret_password"}, true},
		{"username with symbol", Credentials{"alice!", "s3cret_password"}, true},
		{"password too short", Credentials{"alice_01", "short_1"}, true},
		{"password too long", Credentials{"alice_01", strings.Repeat("p", 129)}, true},
		{"password with symbol", Credentials{"alice_01", "pass word!"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentials(tt.creds)
			if tt.wantErr {
				req.Error(err)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestValidateGroupName(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateGroupName("team_42"))
	req.ErrorIs(ValidateGroupName("ab"), errors.ErrInvalidGroupName)
	req.ErrorIs(ValidateGroupName("no spaces here"), errors.ErrInvalidGroupName)
	req.ErrorIs(ValidateGroupName(strings.Repeat("g", 31)), errors.ErrInvalidGroupName)
}

func TestSessions_IssueAndResolve(t *testing.T) {
	req := require.New(t)
	sessions := NewSessions("test_secret_key_for_sessions", time.Hour)

	token, expiresAt, err := sessions.Issue(domain.UserID(7))
	req.NoError(err)
	req.NotEmpty(token)
	req.WithinDuration(time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, err := sessions.Resolve(token)
	req.NoError(err)
	req.Equal(domain.UserID(7), userID)
}

func TestSessions_RejectsForgedAndExpired(t *testing.T) {
	req := require.New(t)
	sessions := NewSessions("test_secret_key_for_sessions", time.Hour)

	_, err := sessions.Resolve("not.a.token")
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// Signed with a different secret.
	other := NewSessions("another_secret_entirely", time.Hour)
	token, _, err := other.Issue(domain.UserID(7))
	req.NoError(err)
	_, err = sessions.Resolve(token)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// Expired at issue time.
	expired := NewSessions("test_secret_key_for_sessions", -time.Minute)
	token, _, err = expired.Issue(domain.UserID(7))
	req.NoError(err)
	_, err = sessions.Resolve(token)
	req.ErrorIs(err, errors.ErrUnauthenticated)
}
