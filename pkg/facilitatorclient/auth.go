package facilitatorclient

import "github.com/pitstop/gas-station/pkg/types"

// BearerAuthHeaders returns an auth-header callback that sends the same
// bearer token on verify and settle calls. Facilitators that require
// per-request signing can supply their own callback instead.
func BearerAuthHeaders(token string) func() (map[string]map[string]string, error) {
	return func() (map[string]map[string]string, error) {
		authorization := map[string]string{"Authorization": "Bearer " + token}
		return map[string]map[string]string{
			authHeaderVerify: authorization,
			authHeaderSettle: authorization,
		}, nil
	}
}

// NewFacilitatorConfig builds a facilitator config for the given base URL,
// attaching bearer auth when token is non-empty.
func NewFacilitatorConfig(url, token string) *types.FacilitatorConfig {
	config := &types.FacilitatorConfig{URL: url}
	if url == "" {
		config.URL = DefaultFacilitatorURL
	}
	if token != "" {
		config.CreateAuthHeaders = BearerAuthHeaders(token)
	}
	return config
}
