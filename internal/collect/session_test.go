package collect

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgingCredentials_ExpireAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	creds := NewAgingCredentials(clock, 7*time.Minute)

	creds.Set("odk.example.org", Credentials{Username: "enumerator", Password: "secret"})

	clock.Advance(6 * time.Minute)
	got, ok := creds.Get("odk.example.org")
	require.True(t, ok)
	assert.Equal(t, "enumerator", got.Username)

	clock.Advance(time.Minute)
	_, ok = creds.Get("odk.example.org")
	assert.False(t, ok)
}

func TestAgingCredentials_SetRefreshesAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	creds := NewAgingCredentials(clock, 7*time.Minute)

	creds.Set("host", Credentials{Username: "a"})
	clock.Advance(5 * time.Minute)
	creds.Set("host", Credentials{Username: "b"})
	clock.Advance(5 * time.Minute)

	got, ok := creds.Get("host")
	require.True(t, ok)
	assert.Equal(t, "b", got.Username)
}

func TestAgingCredentials_DefaultTTLAndClear(t *testing.T) {
	clock := clockwork.NewFakeClock()
	creds := NewAgingCredentials(clock, 0)
	assert.Equal(t, DefaultCredentialsTTL, creds.ttl)

	creds.Set("host", Credentials{Username: "a"})
	creds.Clear()
	_, ok := creds.Get("host")
	assert.False(t, ok)
}

func TestSession_SharesCookiesAcrossRequests(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			seen = append(seen, c.Value)
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/", Expires: time.Now().Add(time.Hour)})
	}))
	defer srv.Close()

	cookieFile := filepath.Join(t.TempDir(), "cookies.json")
	session, err := NewSession(cookieFile, NewAgingCredentials(clockwork.NewFakeClock(), 0), 5*time.Second)
	require.NoError(t, err)

	for range 2 {
		resp, err := session.HTTPClient().Get(srv.URL + "/formList")
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, []string{"abc"}, seen)

	require.NoError(t, session.Save())
	reopened, err := NewSession(cookieFile, NewAgingCredentials(clockwork.NewFakeClock(), 0), 5*time.Second)
	require.NoError(t, err)
	u, _ := url.Parse(srv.URL)
	assert.Len(t, reopened.jar.Cookies(u), 1)

	reopened.Reset()
	assert.Empty(t, reopened.jar.Cookies(u))
}
