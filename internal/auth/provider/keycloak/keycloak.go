package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"horizon-web/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = "keycloak"

// New initializes a Keycloak OIDC client using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8080/realms/horizon
// publicBaseURL is the Keycloak origin reachable from browsers; it replaces
// the discovered origin of the authorization endpoint.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	redirectURL string,
	publicBaseURL string,
) (*provider.OIDCClient, error) {

	if issuer == "" || clientID == "" || redirectURL == "" || publicBaseURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	authURL, err := BrowserAuthURL(issuer, publicBaseURL)
	if err != nil {
		return nil, err
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	ep := oidcProvider.Endpoint()
	ep.AuthURL = authURL

	oauthCfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    ep,
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	return provider.NewOIDCClient(providerName, "Keycloak", oauthCfg, verifier), nil
}

// BrowserAuthURL builds the realm's authorization endpoint on publicBaseURL.
func BrowserAuthURL(issuer, publicBaseURL string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Path == "" {
		return "", fmt.Errorf("invalid keycloak issuer %q", issuer)
	}
	return strings.TrimRight(publicBaseURL, "/") + strings.TrimRight(u.Path, "/") + "/protocol/openid-connect/auth", nil
}
