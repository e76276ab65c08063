package browser

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewLocation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		rawURL     string
		wantOrigin string
		wantHash   string
		wantRoute  string
		wantErr    bool
		wantIsErr  error
	}{
		{
			name:       "nested-callback-fragment",
			rawURL:     "https://portal.example.com/#!/callback#access_token=AAA&id_token=B.C.D",
			wantOrigin: "https://portal.example.com",
			wantHash:   "#!/callback#access_token=AAA&id_token=B.C.D",
			wantRoute:  "/callback",
		},
		{
			name:       "no-fragment",
			rawURL:     "http://localhost:3000",
			wantOrigin: "http://localhost:3000",
			wantRoute:  "/",
		},
		{
			name:       "bare-provider-fragment",
			rawURL:     "http://localhost:3000/#access_token=AAA",
			wantOrigin: "http://localhost:3000",
			wantHash:   "#access_token=AAA",
			wantRoute:  "/",
		},
		{
			name:       "route-with-query",
			rawURL:     "http://localhost:3000/#!/broker-portal?tab=1",
			wantOrigin: "http://localhost:3000",
			wantHash:   "#!/broker-portal?tab=1",
			wantRoute:  "/broker-portal",
		},
		{
			name:      "relative",
			rawURL:    "/callback",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewLocation(tt.rawURL)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.rawURL, got.Href())
			assert.Equal(tt.wantOrigin, got.Origin())
			assert.Equal(tt.wantHash, got.Hash())
			assert.Equal(tt.wantRoute, Route(got))
		})
	}
}

func testStorage(t *testing.T, s Storage) {
	t.Helper()
	assert, require := assert.New(t), require.New(t)

	_, ok := s.GetItem("missing")
	assert.False(ok)

	require.NoError(s.SetItem("access_token", "AAA"))
	v, ok := s.GetItem("access_token")
	assert.True(ok)
	assert.Equal("AAA", v)

	require.NoError(s.SetItem("access_token", "BBB"))
	v, _ = s.GetItem("access_token")
	assert.Equal("BBB", v)

	require.NoError(s.RemoveItem("access_token"))
	_, ok = s.GetItem("access_token")
	assert.False(ok)

	// removing twice is fine
	require.NoError(s.RemoveItem("access_token"))
}

func TestMemoryStorage(t *testing.T) {
	t.Parallel()
	t.Run("contract", func(t *testing.T) {
		testStorage(t, NewMemoryStorage())
	})
	t.Run("fail-writes", func(t *testing.T) {
		assert := assert.New(t)
		s := NewMemoryStorage()
		s.FailWrites(true)
		err := s.SetItem("k", "v")
		assert.Truef(errors.Is(err, ErrStorage), "wanted \"%s\" but got \"%s\"", ErrStorage, err)
		assert.Equal(0, s.Len())
		s.FailWrites(false)
		assert.NoError(s.SetItem("k", "v"))
		assert.Equal(1, s.Len())
	})
}

func TestBoltStorage(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	path := filepath.Join(t.TempDir(), "portal.db")
	db, err := OpenBolt(path, nil)
	require.NoError(err)

	local, err := NewBoltStorage(db, DurableBucket)
	require.NoError(err)
	tab, err := NewBoltStorage(db, TabBucket)
	require.NoError(err)

	testStorage(t, local)

	require.NoError(local.SetItem("user_role", "broker"))
	require.NoError(tab.SetItem("auth0_callback_hash", "#access_token=AAA"))

	keys, err := tab.Keys()
	require.NoError(err)
	assert.Equal([]string{"auth0_callback_hash"}, keys)

	require.NoError(tab.Clear())
	_, ok := tab.GetItem("auth0_callback_hash")
	assert.False(ok)

	// durable entries survive a reopen
	require.NoError(db.Close())
	db, err = OpenBolt(path, nil)
	require.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	local, err = NewBoltStorage(db, DurableBucket)
	require.NoError(err)
	v, ok := local.GetItem("user_role")
	assert.True(ok)
	assert.Equal("broker", v)

	_, err = NewBoltStorage(nil, DurableBucket)
	assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	_, err = NewBoltStorage(db, "")
	assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
}

func TestLoop(t *testing.T) {
	t.Run("wait-for-chained-callbacks", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		l := NewLoop()
		var n int32
		l.AfterFunc(5*time.Millisecond, func() {
			atomic.AddInt32(&n, 1)
			l.AfterFunc(5*time.Millisecond, func() {
				atomic.AddInt32(&n, 1)
			})
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(l.Wait(ctx))
		assert.Equal(int32(2), atomic.LoadInt32(&n))
		assert.Equal(0, l.Pending())
	})
	t.Run("stop", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		l := NewLoop()
		tm := l.AfterFunc(time.Hour, func() { t.Error("stopped callback ran") })
		assert.Equal(1, l.Pending())
		assert.True(tm.Stop())
		assert.False(tm.Stop())
		require.NoError(l.Wait(context.Background()))
	})
	t.Run("wait-cancelled", func(t *testing.T) {
		assert := assert.New(t)
		l := NewLoop()
		tm := l.AfterFunc(time.Hour, func() {})
		defer tm.Stop()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(l.Wait(ctx), context.Canceled)
	})
}

func TestTestScheduler(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	start := time.Unix(1700000000, 0)
	s := NewTestScheduler(start)
	var got []string
	s.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	s.AfterFunc(100*time.Millisecond, func() {
		got = append(got, "a")
		s.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })
	})
	stopped := s.AfterFunc(150*time.Millisecond, func() { got = append(got, "stopped") })
	assert.True(stopped.Stop())

	s.Advance(250 * time.Millisecond)
	assert.Equal([]string{"a", "b"}, got)
	assert.Equal(start.Add(250*time.Millisecond), s.Now())
	assert.Equal(1, s.Pending())

	assert.Equal(1, s.RunAll(10))
	assert.Equal([]string{"a", "b", "c"}, got)
	assert.Equal(start.Add(300*time.Millisecond), s.Now())
}

func TestTestNavigator(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()
	n := NewTestNavigator()
	rejected := errors.New("rejected")
	n.Reject("broker-portal", rejected)
	assert.NoError(n.Go(ctx, "home"))
	assert.ErrorIs(n.Go(ctx, "broker-portal"), rejected)
	n.Reject("broker-portal", nil)
	assert.NoError(n.Go(ctx, "broker-portal"))
	assert.NoError(n.Redirect(ctx, "https://example.com/authorize"))
	assert.Equal([]string{"home", "broker-portal", "broker-portal"}, n.Views())
	assert.Equal([]string{"https://example.com/authorize"}, n.Redirects())
}
