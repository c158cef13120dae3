package gate

import (
	"context"
	"fmt"
	"sync"

	"horizon-web/internal/auth"
)

// stubProvider implements idp.Provider and Revoker for testing.
type stubProvider struct {
	mu         sync.Mutex
	identities map[string]auth.Identity
	gates      map[string]chan struct{}
	queries    []string
	bypassed   []bool
	revokeErr  error
	revokes    []string
	revokeGate chan struct{}
	panics     bool
}

func newStub() *stubProvider {
	return &stubProvider{
		identities: make(map[string]auth.Identity),
		gates:      make(map[string]chan struct{}),
	}
}

func (s *stubProvider) withIdentity(token string, id auth.Identity) *stubProvider {
	s.identities[token] = id
	return s
}

// hold makes lookups of token block until the returned func is called.
func (s *stubProvider) hold(token string) func() {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[token] = ch
	s.mu.Unlock()
	return func() { close(ch) }
}

func (s *stubProvider) QueryCurrentPrincipal(ctx context.Context, token string, bypassCache bool) (*auth.Identity, error) {
	s.mu.Lock()
	s.queries = append(s.queries, token)
	s.bypassed = append(s.bypassed, bypassCache)
	gate := s.gates[token]
	id, ok := s.identities[token]
	panics := s.panics
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", auth.ErrIdentityUnavailable, ctx.Err())
		}
	}
	if panics {
		panic("provider exploded")
	}
	if !ok {
		return nil, fmt.Errorf("%w: no session", auth.ErrIdentityUnavailable)
	}
	return &id, nil
}

func (s *stubProvider) RevokeAllSessions(ctx context.Context, token string) error {
	s.mu.Lock()
	s.revokes = append(s.revokes, token)
	gate := s.revokeGate
	err := s.revokeErr
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (s *stubProvider) revokeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revokes)
}

// recordingNavigator collects redirect instructions.
type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) RedirectTo(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}
