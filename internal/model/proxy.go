// Package model defines shared types for the relay.
package model

// SigninPayload is the credential object sent to the upstream sign-in endpoint.
type SigninPayload struct {
	LoginID         string `json:"loginId"`
	Password        string `json:"password"`
	UnlimitedExpiry bool   `json:"unlimitedExpiry"`
	LOB             string `json:"lob"`
}

// UpstreamResponse is a fully read upstream reply.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}

// ProxyResponse is a successful upstream reply, written back to the caller verbatim.
type ProxyResponse struct {
	StatusCode int
	Body       []byte
}

// ErrorEnvelope is the JSON shape of every error the relay synthesizes.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Details any    `json:"details,omitempty"`
}
