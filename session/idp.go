package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Snapshot is what the IdP knows about a user: flat permission strings,
// group memberships, and per-model permissions.
type Snapshot struct {
	Permissions []string `json:"permissions"`
	Groups      []string `json:"groups"`
	ModelPerms  []string `json:"model_permissions"`
}

// IdentityProvider fetches permission snapshots. The wire protocol belongs to
// the IdP; this service only consumes the result.
type IdentityProvider interface {
	FetchSnapshot(ctx context.Context, externalID int64) (*Snapshot, error)
}

// HTTPIdentityProvider talks to the IdP's snapshot endpoint.
type HTTPIdentityProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPIdentityProvider(baseURL string, timeout time.Duration) *HTTPIdentityProvider {
	return &HTTPIdentityProvider{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPIdentityProvider) FetchSnapshot(ctx context.Context, externalID int64) (*Snapshot, error) {
	url := fmt.Sprintf("%s/api/users/%d/permissions", p.BaseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("idp snapshot: unexpected status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
