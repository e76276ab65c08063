package callback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/session"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayFixture struct {
	tab   *browser.MemoryStorage
	store *session.HandoffStore
	sched *browser.TestScheduler
	nav   *browser.TestNavigator
	log   *bytes.Buffer
	relay *Relay
}

func newRelayFixture(t *testing.T, href string, opt ...Option) *relayFixture {
	t.Helper()
	require := require.New(t)
	loc, err := browser.NewLocation(href)
	require.NoError(err)
	f := &relayFixture{
		tab:   browser.NewMemoryStorage(),
		sched: browser.NewTestScheduler(time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)),
		nav:   browser.NewTestNavigator(),
		log:   &bytes.Buffer{},
	}
	f.store, err = session.NewHandoffStore(f.tab)
	require.NoError(err)
	l := hclog.New(&hclog.LoggerOptions{Output: f.log, Level: hclog.Trace})
	opt = append([]Option{WithLogger(l)}, opt...)
	f.relay, err = NewRelay(loc, f.store, f.sched, f.nav, opt...)
	require.NoError(err)
	return f
}

func TestNewRelay(t *testing.T) {
	t.Parallel()
	loc, err := browser.NewLocation("https://portal.example.com/")
	require.NoError(t, err)
	hs, err := session.NewHandoffStore(browser.NewMemoryStorage())
	require.NoError(t, err)
	sched := browser.NewTestScheduler(time.Now())
	nav := browser.NewTestNavigator()

	tests := []struct {
		name string
		l    browser.Location
		h    *session.HandoffStore
		s    browser.Scheduler
		r    browser.Redirector
	}{
		{name: "nil-location", h: hs, s: sched, r: nav},
		{name: "nil-handoff", l: loc, s: sched, r: nav},
		{name: "nil-scheduler", l: loc, h: hs, r: nav},
		{name: "nil-redirector", l: loc, h: hs, s: sched},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			_, err := NewRelay(tt.l, tt.h, tt.s, tt.r)
			assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
		})
	}
}

func TestRelay_Run(t *testing.T) {
	t.Parallel()
	t.Run("nested-token-fragment", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		href := "https://portal.example.com/#!/callback#access_token=AAA&id_token=BBB.CCC.DDD&expires_in=7200"
		f := newRelayFixture(t, href)

		require.True(f.relay.Run(context.Background()))

		h, ok := f.store.Read()
		require.True(ok)
		assert.Equal("#access_token=AAA&id_token=BBB.CCC.DDD&expires_in=7200", h.Fragment)
		assert.True(h.ShouldProcess)
		assert.Equal(href, h.OriginalURL)
		assert.True(f.sched.Now().Equal(h.Timestamp))

		// nothing happens before the delay
		f.sched.Advance(99 * time.Millisecond)
		assert.Empty(f.nav.Redirects())
		f.sched.Advance(time.Millisecond)
		assert.Equal([]string{"https://portal.example.com/#!/callback"}, f.nav.Redirects())
		assert.Empty(f.nav.Views())
	})
	t.Run("error-fragment", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f := newRelayFixture(t, "https://portal.example.com/#error=access_denied&state=xyz", WithCallbackRoute("/#!/cb"), WithDelay(0))
		require.True(f.relay.Run(context.Background()))
		h, _ := f.store.Read()
		assert.Equal("#error=access_denied&state=xyz", h.Fragment)
		f.sched.Advance(0)
		assert.Equal([]string{"https://portal.example.com/#!/cb"}, f.nav.Redirects())
	})
	t.Run("no-markers", func(t *testing.T) {
		assert := assert.New(t)
		f := newRelayFixture(t, "https://portal.example.com/#!/profile")
		assert.False(f.relay.Run(context.Background()))
		assert.Equal(0, f.tab.Len())
		assert.Equal(0, f.sched.Pending())
	})
	t.Run("no-fragment", func(t *testing.T) {
		assert := assert.New(t)
		f := newRelayFixture(t, "https://portal.example.com/")
		assert.False(f.relay.Run(context.Background()))
		assert.Equal(0, f.tab.Len())
		assert.Equal(0, f.sched.Pending())
	})
	t.Run("write-failure-is-logged", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f := newRelayFixture(t, "https://portal.example.com/#access_token=AAA")
		f.tab.FailWrites(true)
		require.True(f.relay.Run(context.Background()))
		assert.Contains(f.log.String(), "did not read back")
		f.sched.Advance(time.Second)
		assert.Len(f.nav.Redirects(), 1)
	})
}

func TestRelay_CallbackURL(t *testing.T) {
	t.Parallel()
	f := newRelayFixture(t, "http://localhost:3000/some/path?x=1#access_token=a")
	assert.Equal(t, "http://localhost:3000/#!/callback", f.relay.CallbackURL())
}
