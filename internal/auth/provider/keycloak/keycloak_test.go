package keycloak

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserAuthURL(t *testing.T) {
	got, err := BrowserAuthURL("http://keycloak:8080/realms/horizon", "http://localhost:8081/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/realms/horizon/protocol/openid-connect/auth", got)
}

func TestBrowserAuthURL_InvalidIssuer(t *testing.T) {
	_, err := BrowserAuthURL("keycloak", "http://localhost:8081")
	assert.Error(t, err)
}

func TestNew_MissingFields(t *testing.T) {
	_, err := New(context.Background(), "", "client", "http://app/cb", "http://kc")
	assert.Error(t, err)
}
