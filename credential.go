package fastmssql

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// The trailing slash on the resource is intentional; the scope becomes
// "https://database.windows.net//.default".
const sqlDatabaseResource = "https://database.windows.net/"

// tokenRefreshWindow is how long before expiry a cached token is replaced.
const tokenRefreshWindow = 5 * time.Minute

type credentialKind int

const (
	credServicePrincipal credentialKind = iota
	credManagedIdentity
	credStaticToken
	credDefaultChain
)

// Credential supplies Azure AD bearer tokens to the pool at connect time.
// Tokens are cached and refreshed shortly before expiry; a Credential is
// safe to share across Connections.
type Credential struct {
	kind credentialKind

	clientID     string
	clientSecret string
	tenantID     string
	staticToken  string

	mu     sync.Mutex
	source azcore.TokenCredential
	cached azcore.AccessToken
}

// ServicePrincipalCredential authenticates as an Azure AD application with a
// client secret.
func ServicePrincipalCredential(clientID, clientSecret, tenantID string) *Credential {
	return &Credential{
		kind:         credServicePrincipal,
		clientID:     clientID,
		clientSecret: clientSecret,
		tenantID:     tenantID,
	}
}

// ManagedIdentityCredential authenticates with the host's managed identity.
// clientID selects a user-assigned identity; leave it empty for the
// system-assigned one.
func ManagedIdentityCredential(clientID string) *Credential {
	return &Credential{kind: credManagedIdentity, clientID: clientID}
}

// StaticTokenCredential uses a caller-supplied access token as-is. No
// caching or refresh is performed; the caller owns the token lifetime.
func StaticTokenCredential(token string) *Credential {
	return &Credential{kind: credStaticToken, staticToken: token}
}

// DefaultCredential walks the ambient Azure credential chain: environment
// variables, workload identity, managed identity, then the Azure CLI.
func DefaultCredential() *Credential {
	return &Credential{kind: credDefaultChain}
}

func (c *Credential) hint() string {
	switch c.kind {
	case credServicePrincipal:
		return "verify the client id, client secret and tenant id"
	case credManagedIdentity:
		return "ensure a managed identity is assigned to this host"
	case credDefaultChain:
		return "run 'az login' or set the AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET environment variables"
	}
	return ""
}

// newSource builds the azidentity credential backing this descriptor.
func (c *Credential) newSource() (azcore.TokenCredential, error) {
	switch c.kind {
	case credServicePrincipal:
		return azidentity.NewClientSecretCredential(c.tenantID, c.clientID, c.clientSecret, nil)
	case credManagedIdentity:
		opts := &azidentity.ManagedIdentityCredentialOptions{}
		if c.clientID != "" {
			opts.ID = azidentity.ClientID(c.clientID)
		}
		return azidentity.NewManagedIdentityCredential(opts)
	default:
		return azidentity.NewDefaultAzureCredential(nil)
	}
}

// token returns a bearer token for the SQL database resource, reusing the
// cached token while it has more than tokenRefreshWindow left to live.
func (c *Credential) token(ctx context.Context) (string, error) {
	if c.kind == credStaticToken {
		return c.staticToken, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached.Token != "" && time.Until(c.cached.ExpiresOn) > tokenRefreshWindow {
		return c.cached.Token, nil
	}

	if c.source == nil {
		source, err := c.newSource()
		if err != nil {
			return "", &CredentialError{Hint: c.hint(), Err: err}
		}
		c.source = source
	}

	tk, err := c.source.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{sqlDatabaseResource + "/.default"},
	})
	if err != nil {
		return "", &CredentialError{Hint: c.hint(), Err: err}
	}
	c.cached = tk
	return tk.Token, nil
}
