// Package kratos implements idp.Provider against an Ory Kratos deployment.
package kratos

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"horizon-web/internal/auth"

	kratos "github.com/ory/kratos-client-go"
)

// CookieName is the session cookie Kratos issues to browsers.
const CookieName = "ory_kratos_session"

// Gateway talks to the Kratos public API for session lookups and to the
// admin API for revocation.
type Gateway struct {
	public    *kratos.APIClient
	admin     *kratos.APIClient
	publicURL string
	timeout   time.Duration
}

// NewGateway creates a Kratos gateway with a tuned HTTP transport.
func NewGateway(publicURL, adminURL string, timeout time.Duration) *Gateway {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	return &Gateway{
		public:    newClient(publicURL, httpClient),
		admin:     newClient(adminURL, httpClient),
		publicURL: publicURL,
		timeout:   timeout,
	}
}

func newClient(baseURL string, httpClient *http.Client) *kratos.APIClient {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: baseURL},
	}
	configuration.HTTPClient = httpClient
	return kratos.NewAPIClient(configuration)
}

// QueryCurrentPrincipal resolves the session cookie value via /sessions/whoami.
// Kratos has no client-side cache to bypass, so bypassCache is ignored here.
func (g *Gateway) QueryCurrentPrincipal(ctx context.Context, token string, _ bool) (*auth.Identity, error) {
	session, err := g.whoami(ctx, token)
	if err != nil {
		return nil, err
	}

	identity := session.Identity
	email, name := traitsOf(identity.Traits)

	var createdAt time.Time
	if identity.CreatedAt != nil {
		createdAt = *identity.CreatedAt
	}

	return &auth.Identity{
		ID:        identity.Id,
		Email:     email,
		Name:      name,
		CreatedAt: createdAt,
	}, nil
}

// RevokeAllSessions looks up the owner of token and deletes every session of
// that identity through the admin API.
func (g *Gateway) RevokeAllSessions(ctx context.Context, token string) error {
	session, err := g.whoami(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", auth.ErrRevocationFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.admin.IdentityAPI.DeleteIdentitySessions(ctx, session.Identity.Id).Execute()
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		// no sessions left to delete
		return nil
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: kratos returned status %d", auth.ErrRevocationFailed, resp.StatusCode)
		}
		return fmt.Errorf("%w: %w", auth.ErrRevocationFailed, err)
	}
	return nil
}

// BrowserLoginURL returns the self-service login flow that sends the browser
// back to returnTo once Kratos has issued a session.
func (g *Gateway) BrowserLoginURL(returnTo string) string {
	q := url.Values{}
	if returnTo != "" {
		q.Set("return_to", returnTo)
	}
	u := g.publicURL + "/self-service/login/browser"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (g *Gateway) whoami(ctx context.Context, token string) (*kratos.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty session token", auth.ErrIdentityUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, resp, err := g.public.FrontendAPI.ToSession(ctx).
		Cookie(CookieName + "=" + token).
		Execute()
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: kratos returned status %d", auth.ErrIdentityUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", auth.ErrIdentityUnavailable, err)
	}

	if session.Active != nil && !*session.Active {
		return nil, fmt.Errorf("%w: session is not active", auth.ErrIdentityUnavailable)
	}
	if session.Identity == nil || session.Identity.Id == "" {
		return nil, fmt.Errorf("%w: missing identity in session", auth.ErrIdentityUnavailable)
	}

	return session, nil
}

func traitsOf(raw interface{}) (email, name string) {
	traits, ok := raw.(map[string]interface{})
	if !ok {
		return "", ""
	}
	if v, ok := traits["email"].(string); ok {
		email = v
	}
	switch v := traits["name"].(type) {
	case string:
		name = v
	case map[string]interface{}:
		first, _ := v["first"].(string)
		last, _ := v["last"].(string)
		name = first
		if last != "" {
			if name != "" {
				name += " "
			}
			name += last
		}
	}
	return email, name
}
