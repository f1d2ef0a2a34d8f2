package refresh_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"oauth-refresh/internal/models"
	"oauth-refresh/internal/refresh"
	"oauth-refresh/internal/template"
	"oauth-refresh/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTrigger(repo *mocks.MockRepository, secretsClient *mocks.MockSecretsClient) *refresh.Trigger {
	return refresh.NewTrigger(repo, secretsClient, template.New(), &http.Client{Timeout: 5 * time.Second}, zap.NewNop())
}

func testConnection() models.Connection {
	return models.Connection{
		ID:               "conn-1",
		Platform:         "acme",
		BuildableID:      "build-1",
		Environment:      models.EnvironmentTest,
		SecretsServiceID: "sec-old",
		OAuth: &models.OAuth{
			Enabled: &models.OAuthEnabled{
				DefinitionID: "def-1",
				ExpiresAt:    time.Now().Add(5 * time.Minute).Unix(),
				ExpiresIn:    3600,
			},
		},
	}
}

func testSecret() *models.OAuthSecret {
	return &models.OAuthSecret{
		ClientID:     "client-1",
		ClientSecret: "shhh",
		AccessToken:  "at-old",
		TokenType:    "Bearer",
		RefreshToken: "rt-old",
		ExpiresIn:    3600,
	}
}

func TestTrigger_DisabledOAuthFailsWithoutWrites(t *testing.T) {
	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	conn := testConnection()
	conn.OAuth = nil

	outcome := trigger.Trigger(t.Context(), conn)

	assert.Equal(t, models.OutcomeFailure, outcome.Type)
	assert.Contains(t, outcome.Error, "has no oauth")
	assert.Equal(t, "conn-1", outcome.Metadata["id"])

	mockRepo.AssertNotCalled(t, "GetOAuthDefinition", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "UpdateConnectionOAuth", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockSecrets.AssertNotCalled(t, "GetSecret", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockSecrets.AssertNotCalled(t, "CreateSecret", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTrigger_MissingDefinitionFails(t *testing.T) {
	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-1").Return(nil, nil)

	outcome := trigger.Trigger(t.Context(), testConnection())

	assert.Equal(t, models.OutcomeFailure, outcome.Type)
	assert.Contains(t, outcome.Error, "not found")
	mockSecrets.AssertNotCalled(t, "GetSecret", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTrigger_SuccessRotatesSecretThenUpdatesConnection(t *testing.T) {
	// Provider omits the refresh token on refresh, as at least one major
	// provider does; the rotated secret must retain the prior token
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "Basic creds", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-old", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-new",
			"token_type":   "Bearer",
			"expires_in":   7200,
		})
	}))
	defer provider.Close()

	computation := `{headers: {auth: 'creds'}, body: {grant_type: 'refresh_token', refresh_token: '{{refreshToken}}'}}`
	definition := &models.OAuthDefinition{
		ID: "def-1",
		Configuration: models.RequestConfiguration{
			URI:     provider.URL,
			Content: models.ContentTypeForm,
			Headers: map[string]string{
				"Authorization": "Basic {{auth}}",
			},
		},
		Compute: models.ComputeConfiguration{
			Computation: &computation,
			Response:    `{accessToken: body.access_token, refreshToken: body.refresh_token, tokenType: body.token_type, expiresIn: body.expires_in}`,
		},
	}

	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	var sequence []string

	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-1").Return(definition, nil)
	mockSecrets.On("GetSecret", mock.Anything, "sec-old", "build-1", models.EnvironmentTest).Return(testSecret(), nil)
	mockSecrets.On("CreateSecret", mock.Anything, "build-1", mock.MatchedBy(func(payload models.OAuthSecret) bool {
		return payload.AccessToken == "at-new" &&
			payload.RefreshToken == "rt-old" && // fallback law
			payload.ExpiresIn == 7200 &&
			payload.ClientID == "client-1"
	}), models.EnvironmentTest).Return(&models.Secret{ID: "sec-new"}, nil).Run(func(args mock.Arguments) {
		sequence = append(sequence, "create_secret")
	})
	mockRepo.On("UpdateConnectionOAuth", mock.Anything, "conn-1", mock.MatchedBy(func(oauth *models.OAuth) bool {
		return oauth.Enabled != nil &&
			oauth.Enabled.DefinitionID == "def-1" &&
			oauth.Enabled.ExpiresIn == 7200 &&
			oauth.Enabled.ExpiresAt > time.Now().Unix()
	}), "sec-new").Return(nil).Run(func(args mock.Arguments) {
		sequence = append(sequence, "update_connection")
	})

	outcome := trigger.Trigger(t.Context(), testConnection())

	require.Equal(t, models.OutcomeSuccess, outcome.Type, "outcome error: %s", outcome.Error)
	assert.Equal(t, "conn-1", outcome.Metadata["id"])
	assert.Equal(t, []string{"create_secret", "update_connection"}, sequence)

	mockRepo.AssertExpectations(t)
	mockSecrets.AssertExpectations(t)
}

func TestTrigger_JSONContentAndQueryParams(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "client-1", r.URL.Query().Get("client_id"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt-old", body["refresh_token"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-new",
			"refresh_token": "rt-new",
			"expires_in":    3600,
		})
	}))
	defer provider.Close()

	computation := `{queryParams: {client: clientId}, body: {refresh_token: '{{refreshToken}}'}}`
	definition := &models.OAuthDefinition{
		ID: "def-1",
		Configuration: models.RequestConfiguration{
			URI:     provider.URL,
			Content: models.ContentTypeJSON,
			QueryParams: map[string]string{
				"client_id": "{{client}}",
			},
		},
		Compute: models.ComputeConfiguration{
			Computation: &computation,
			Response:    `{accessToken: body.access_token, refreshToken: body.refresh_token, expiresIn: body.expires_in}`,
		},
	}

	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-1").Return(definition, nil)
	mockSecrets.On("GetSecret", mock.Anything, "sec-old", "build-1", models.EnvironmentTest).Return(testSecret(), nil)
	mockSecrets.On("CreateSecret", mock.Anything, "build-1", mock.MatchedBy(func(payload models.OAuthSecret) bool {
		return payload.RefreshToken == "rt-new"
	}), models.EnvironmentTest).Return(&models.Secret{ID: "sec-new"}, nil)
	mockRepo.On("UpdateConnectionOAuth", mock.Anything, "conn-1", mock.Anything, "sec-new").Return(nil)

	outcome := trigger.Trigger(t.Context(), testConnection())

	require.Equal(t, models.OutcomeSuccess, outcome.Type, "outcome error: %s", outcome.Error)
	mockRepo.AssertExpectations(t)
	mockSecrets.AssertExpectations(t)
}

func TestTrigger_FullTemplateDefinition(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The pre-rendered URI embedded the tenant subdomain
		assert.Equal(t, "/acme/oauth/token", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-new",
			"expires_in":   3600,
		})
	}))
	defer provider.Close()

	definition := &models.OAuthDefinition{
		ID: "def-1",
		Configuration: models.RequestConfiguration{
			URI: provider.URL + "/{{metadata.subdomain}}/oauth/token",
		},
		Compute: models.ComputeConfiguration{
			Response: `{accessToken: body.access_token, expiresIn: body.expires_in}`,
		},
		FullTemplate: true,
	}

	secret := testSecret()
	secret.Metadata = json.RawMessage(`{"subdomain": "acme"}`)

	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-1").Return(definition, nil)
	mockSecrets.On("GetSecret", mock.Anything, "sec-old", "build-1", models.EnvironmentTest).Return(secret, nil)
	mockSecrets.On("CreateSecret", mock.Anything, "build-1", mock.Anything, models.EnvironmentTest).Return(&models.Secret{ID: "sec-new"}, nil)
	mockRepo.On("UpdateConnectionOAuth", mock.Anything, "conn-1", mock.Anything, "sec-new").Return(nil)

	outcome := trigger.Trigger(t.Context(), testConnection())

	require.Equal(t, models.OutcomeSuccess, outcome.Type, "outcome error: %s", outcome.Error)
}

func TestTrigger_HeaderRenderFailureFailsBeforeExecute(t *testing.T) {
	called := false
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer provider.Close()

	// No computation, so the header context is empty and the placeholder
	// cannot resolve
	definition := &models.OAuthDefinition{
		ID: "def-1",
		Configuration: models.RequestConfiguration{
			URI: provider.URL,
			Headers: map[string]string{
				"Authorization": "Bearer {{access_token}}",
			},
		},
		Compute: models.ComputeConfiguration{
			Response: `{accessToken: body.access_token, expiresIn: body.expires_in}`,
		},
	}

	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-1").Return(definition, nil)
	mockSecrets.On("GetSecret", mock.Anything, "sec-old", "build-1", models.EnvironmentTest).Return(testSecret(), nil)

	outcome := trigger.Trigger(t.Context(), testConnection())

	assert.Equal(t, models.OutcomeFailure, outcome.Type)
	assert.False(t, called, "provider must not be called after a failed render")
	mockSecrets.AssertNotCalled(t, "CreateSecret", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTrigger_FailedPersistIsFailureDespiteRotation(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-new",
			"expires_in":   3600,
		})
	}))
	defer provider.Close()

	definition := &models.OAuthDefinition{
		ID: "def-1",
		Configuration: models.RequestConfiguration{
			URI: provider.URL,
		},
		Compute: models.ComputeConfiguration{
			Response: `{accessToken: body.access_token, expiresIn: body.expires_in}`,
		},
	}

	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)
	trigger := newTrigger(mockRepo, mockSecrets)

	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-1").Return(definition, nil)
	mockSecrets.On("GetSecret", mock.Anything, "sec-old", "build-1", models.EnvironmentTest).Return(testSecret(), nil)
	mockSecrets.On("CreateSecret", mock.Anything, "build-1", mock.Anything, models.EnvironmentTest).Return(&models.Secret{ID: "sec-new"}, nil)
	mockRepo.On("UpdateConnectionOAuth", mock.Anything, "conn-1", mock.Anything, "sec-new").Return(assert.AnError)

	outcome := trigger.Trigger(t.Context(), testConnection())

	assert.Equal(t, models.OutcomeFailure, outcome.Type)
	mockSecrets.AssertExpectations(t)
}
