package collect

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	cookiejar "github.com/juju/persistent-cookiejar"
)

// DefaultCredentialsTTL is how long credentials stay usable after being set.
const DefaultCredentialsTTL = 7 * time.Minute

// Credentials is a username/password pair for one server host.
type Credentials struct {
	Username string
	Password string
}

// AgingCredentials remembers credentials per host and forgets every entry
// once ttl has passed since it was last set.
type AgingCredentials struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]agingEntry
}

type agingEntry struct {
	creds Credentials
	setAt time.Time
}

func NewAgingCredentials(clock clockwork.Clock, ttl time.Duration) *AgingCredentials {
	if ttl <= 0 {
		ttl = DefaultCredentialsTTL
	}
	return &AgingCredentials{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]agingEntry),
	}
}

func (a *AgingCredentials) Set(host string, creds Credentials) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[host] = agingEntry{creds: creds, setAt: a.clock.Now()}
}

// Get returns the credentials for host if they have not aged out.
func (a *AgingCredentials) Get(host string) (Credentials, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[host]
	if !ok {
		return Credentials{}, false
	}
	if a.clock.Since(e.setAt) >= a.ttl {
		delete(a.entries, host)
		return Credentials{}, false
	}
	return e.creds, true
}

func (a *AgingCredentials) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.entries)
}

// Session is the HTTP session state shared by every request the agent
// makes: one cookie jar and one credentials provider.
type Session struct {
	jar         *cookiejar.Jar
	credentials *AgingCredentials
	client      *http.Client
}

// NewSession opens the cookie jar persisted at cookieFile. An empty
// cookieFile keeps cookies in memory only.
func NewSession(cookieFile string, credentials *AgingCredentials, timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		Filename:  cookieFile,
		NoPersist: cookieFile == "",
	})
	if err != nil {
		return nil, fmt.Errorf("open cookie jar: %w", err)
	}
	return &Session{
		jar:         jar,
		credentials: credentials,
		client:      &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// HTTPClient returns the client bound to the shared cookie jar.
func (s *Session) HTTPClient() *http.Client { return s.client }

func (s *Session) Credentials() *AgingCredentials { return s.credentials }

// Save flushes cookies to disk.
func (s *Session) Save() error {
	if err := s.jar.Save(); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}

// Reset drops all cookies and credentials.
func (s *Session) Reset() {
	s.jar.RemoveAll()
	s.credentials.Clear()
}
