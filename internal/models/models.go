package models

import (
	"encoding/json"
	"time"
)

// Environment selects which well-known access key is used when talking to
// the secrets service.
type Environment string

const (
	EnvironmentTest        Environment = "test"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLive        Environment = "live"
	EnvironmentProduction  Environment = "production"
)

// IsLive reports whether the environment maps to the production access key.
func (e Environment) IsLive() bool {
	return e == EnvironmentLive || e == EnvironmentProduction
}

// Connection is a tenant-owned third-party integration record. It is
// created and updated by an external onboarding system; this service only
// mutates the oauth state and the secrets service reference after a
// successful refresh.
type Connection struct {
	ID               string      `json:"id"`
	Platform         string      `json:"platform"`
	BuildableID      string      `json:"buildableId"`
	Environment      Environment `json:"environment"`
	SecretsServiceID string      `json:"secretsServiceId"`
	OAuth            *OAuth      `json:"oauth,omitempty"`
}

// OAuth is the connection's oauth state. A nil Enabled pointer (or a nil
// OAuth altogether) means oauth is disabled for the connection.
type OAuth struct {
	Enabled *OAuthEnabled `json:"enabled,omitempty"`
}

// OAuthEnabled carries the refreshable state of a connection.
type OAuthEnabled struct {
	DefinitionID string `json:"connectionOAuthDefinitionId"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
}

// IsEnabled reports whether the connection can be refreshed at all.
func (c *Connection) IsEnabled() bool {
	return c.OAuth != nil && c.OAuth.Enabled != nil
}

// OAuthDefinition is the per-provider, data-driven specification of how to
// build a refresh request and decode its response. It is fetched fresh for
// every attempt so provider-config edits take effect on the next cycle.
type OAuthDefinition struct {
	ID            string               `json:"id"`
	Configuration RequestConfiguration `json:"configuration"`
	Compute       ComputeConfiguration `json:"compute"`
	// FullTemplate re-renders the whole definition against the secret
	// payload before use, so definitions can embed per-tenant values such
	// as a subdomain.
	FullTemplate bool `json:"isFullTemplateEnabled,omitempty"`
}

// ContentType drives how the request body is encoded.
type ContentType string

const (
	ContentTypeJSON ContentType = "json"
	ContentTypeForm ContentType = "form"
)

// RequestConfiguration describes the refresh request: target URI, body
// encoding and raw header/query-parameter templates.
type RequestConfiguration struct {
	URI         string            `json:"uri"`
	Content     ContentType       `json:"content,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
}

// ComputeConfiguration holds the definition's declarative transforms.
// Computation derives the template context from the secret payload;
// Response decodes the provider's reply into an OAuthResponse.
type ComputeConfiguration struct {
	Computation *string `json:"computation,omitempty"`
	Response    string  `json:"response"`
}

// Computation is the result of evaluating a definition's computation
// transform against the secret payload. Each sub-payload is the template
// context for the matching part of the request.
type Computation struct {
	Headers     interface{} `json:"headers,omitempty"`
	QueryParams interface{} `json:"queryParams,omitempty"`
	Body        interface{} `json:"body,omitempty"`
}

// OAuthSecret is the normalized secret record held by the secrets service.
// Provider-specific raw fields are preserved opaquely in Metadata.
type OAuthSecret struct {
	CreatedAt    int64           `json:"createdAt"`
	ClientID     string          `json:"clientId"`
	ClientSecret string          `json:"clientSecret"`
	AccessToken  string          `json:"accessToken"`
	TokenType    string          `json:"tokenType,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	ExpiresIn    int             `json:"expiresIn"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// FromRefresh builds the rotated secret from a decoded provider response.
// Providers may omit the refresh token on refresh; in that case the
// previous token is retained rather than discarded.
func (s OAuthSecret) FromRefresh(decoded OAuthResponse, raw json.RawMessage) OAuthSecret {
	refreshToken := s.RefreshToken
	if decoded.RefreshToken != nil && *decoded.RefreshToken != "" {
		refreshToken = *decoded.RefreshToken
	}

	tokenType := s.TokenType
	if decoded.TokenType != "" {
		tokenType = decoded.TokenType
	}

	return OAuthSecret{
		CreatedAt:    time.Now().Unix(),
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		AccessToken:  decoded.AccessToken,
		TokenType:    tokenType,
		RefreshToken: refreshToken,
		ExpiresIn:    decoded.ExpiresIn,
		Metadata:     raw,
	}
}

// OAuthResponse is the normalized decode of a provider's token endpoint
// reply, produced by the definition's response transform.
type OAuthResponse struct {
	AccessToken  string  `json:"accessToken"`
	TokenType    string  `json:"tokenType,omitempty"`
	ExpiresIn    int     `json:"expiresIn"`
	RefreshToken *string `json:"refreshToken,omitempty"`
}

// Secret is the opaque record returned by the secrets service. Only the id
// is ever persisted in the connection repository.
type Secret struct {
	ID          string          `json:"id"`
	BuildableID string          `json:"buildableId,omitempty"`
	Secret      json.RawMessage `json:"secret,omitempty"`
}

// AccessRecord is the tenant-scoped credential resolved from the
// access-control repository and attached to secrets-service requests.
type AccessRecord struct {
	BuildableID string `json:"buildableId"`
	Key         string `json:"key"`
	AccessKey   string `json:"accessKey"`
	Deleted     bool   `json:"deleted"`
}

// Outcome is the terminal result of one refresh attempt. Every state
// machine run produces exactly one; no attempt silently disappears.
type Outcome struct {
	Type     string                 `json:"type"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Success builds a success outcome.
func Success(message string, metadata map[string]interface{}) Outcome {
	return Outcome{
		Type:     OutcomeSuccess,
		Message:  message,
		Metadata: metadata,
	}
}

// Failure builds a failure outcome from an error.
func Failure(err error, metadata map[string]interface{}) Outcome {
	return Outcome{
		Type:     OutcomeFailure,
		Error:    err.Error(),
		Metadata: metadata,
	}
}

// IsSuccess reports whether the outcome is a success.
func (o Outcome) IsSuccess() bool {
	return o.Type == OutcomeSuccess
}

// AggregateState is the last-run snapshot held by the orchestrator,
// overwritten wholesale at the end of each discovery cycle.
type AggregateState struct {
	State       json.RawMessage `json:"state"`
	LastUpdated time.Time       `json:"lastUpdated"`
}
