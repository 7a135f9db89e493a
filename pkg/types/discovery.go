package types

// Discovery document served at /discovery/resources so x402-aware clients can
// find the station's paid endpoints without probing for 402s.

// DiscoveryMetadata describes a paid resource for the discovery catalog.
type DiscoveryMetadata struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Provider    string   `json:"provider,omitempty"`
}

// DiscoveryResource is one x402-protected endpoint and its accepted payments.
type DiscoveryResource struct {
	Resource    string                 `json:"resource"`
	Type        string                 `json:"type"`
	X402Version int                    `json:"x402Version"`
	Accepts     []*PaymentRequirements `json:"accepts"`
	LastUpdated string                 `json:"lastUpdated"`
	Metadata    *DiscoveryMetadata     `json:"metadata,omitempty"`
}

// DiscoveryListResponse is the body of GET /discovery/resources.
type DiscoveryListResponse struct {
	X402Version int                 `json:"x402Version"`
	Items       []DiscoveryResource `json:"items"`
	Pagination  DiscoveryPagination `json:"pagination"`
}

// DiscoveryPagination reports the window returned by a discovery list.
type DiscoveryPagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}
