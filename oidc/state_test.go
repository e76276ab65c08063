package oidc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := NewState(10*time.Minute, WithNow(nowFn))
		require.NoError(err)
		assert.True(strings.HasPrefix(s.Id(), "st_"))
		assert.True(strings.HasPrefix(s.Nonce(), "n_"))
		assert.NotEqual(s.Id(), s.Nonce())
		assert.Equal(now.Add(10*time.Minute), s.ExpiresAt())
		assert.False(s.IsExpired(WithNow(nowFn)))
		assert.True(s.IsExpired(WithNow(func() time.Time { return now.Add(10 * time.Minute) })))
		// skew makes it expire early
		assert.True(s.IsExpired(WithNow(nowFn), WithExpirySkew(11*time.Minute)))
	})
	t.Run("unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s1, err := NewState(time.Minute)
		require.NoError(err)
		s2, err := NewState(time.Minute)
		require.NoError(err)
		assert.NotEqual(s1.Id(), s2.Id())
		assert.NotEqual(s1.Nonce(), s2.Nonce())
	})
	t.Run("zero-expiry", func(t *testing.T) {
		assert := assert.New(t)
		_, err := NewState(0)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
		_, err = NewState(-time.Second)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
}

func TestRestoreState(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(time.Hour)
	tests := []struct {
		name      string
		id        string
		nonce     string
		exp       time.Time
		wantErr   bool
		wantIsErr error
	}{
		{name: "valid", id: "st_1", nonce: "n_1", exp: exp},
		{name: "missing-id", nonce: "n_1", exp: exp, wantErr: true, wantIsErr: ErrInvalidParameter},
		{name: "missing-nonce", id: "st_1", exp: exp, wantErr: true, wantIsErr: ErrInvalidParameter},
		{name: "equal", id: "x", nonce: "x", exp: exp, wantErr: true, wantIsErr: ErrInvalidParameter},
		{name: "missing-expiry", id: "st_1", nonce: "n_1", wantErr: true, wantIsErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := RestoreState(tt.id, tt.nonce, tt.exp)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.id, got.Id())
			assert.Equal(tt.nonce, got.Nonce())
			assert.True(tt.exp.Equal(got.ExpiresAt()))
		})
	}
}

func TestNewId(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	id, err := NewId("")
	require.NoError(err)
	assert.Len(id, 36)
	id, err = NewId("st")
	require.NoError(err)
	assert.True(strings.HasPrefix(id, "st_"))
	assert.Len(id, 39)
}
