package refresh_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"oauth-refresh/internal/metrics"
	"oauth-refresh/internal/models"
	"oauth-refresh/internal/refresh"
	"oauth-refresh/internal/template"
	"oauth-refresh/test/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRefresher(repo *mocks.MockRepository, secretsClient *mocks.MockSecretsClient) *refresh.Refresher {
	trigger := refresh.NewTrigger(repo, secretsClient, template.New(), &http.Client{Timeout: 5 * time.Second}, zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())
	return refresh.NewRefresher(repo, trigger, m, zap.NewNop(), 4)
}

func TestQuery_BeforeFirstCycleReturnsNullState(t *testing.T) {
	refresher := newRefresher(new(mocks.MockRepository), new(mocks.MockSecretsClient))

	state := refresher.Query()

	assert.Equal(t, json.RawMessage("null"), state.State)
	assert.False(t, state.LastUpdated.IsZero())
}

func TestRefresh_AggregatesPartialFailures(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-new",
			"expires_in":   3600,
		})
	}))
	defer provider.Close()

	definition := &models.OAuthDefinition{
		ID: "def-ok",
		Configuration: models.RequestConfiguration{
			URI: provider.URL,
		},
		Compute: models.ComputeConfiguration{
			Response: `{accessToken: body.access_token, expiresIn: body.expires_in}`,
		},
	}

	disabled := testConnection()
	disabled.ID = "conn-disabled"
	disabled.OAuth = nil

	missingDef := testConnection()
	missingDef.ID = "conn-missing-def"
	missingDef.OAuth.Enabled.DefinitionID = "def-missing"

	healthy := testConnection()
	healthy.ID = "conn-healthy"
	healthy.OAuth.Enabled.DefinitionID = "def-ok"

	mockRepo := new(mocks.MockRepository)
	mockSecrets := new(mocks.MockSecretsClient)

	mockRepo.On("GetConnectionsToRefresh", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Connection{disabled, missingDef, healthy}, nil)
	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-missing").Return(nil, nil)
	mockRepo.On("GetOAuthDefinition", mock.Anything, "def-ok").Return(definition, nil)
	mockSecrets.On("GetSecret", mock.Anything, "sec-old", "build-1", models.EnvironmentTest).Return(testSecret(), nil)
	mockSecrets.On("CreateSecret", mock.Anything, "build-1", mock.Anything, models.EnvironmentTest).Return(&models.Secret{ID: "sec-new"}, nil)
	mockRepo.On("UpdateConnectionOAuth", mock.Anything, "conn-healthy", mock.Anything, "sec-new").Return(nil)

	refresher := newRefresher(mockRepo, mockSecrets)

	// Per-connection failures never fail the orchestrator call
	require.NoError(t, refresher.Refresh(t.Context(), 10))

	state := refresher.Query()

	var outcomes []models.Outcome
	require.NoError(t, json.Unmarshal(state.State, &outcomes))
	require.Len(t, outcomes, 3, "no attempt may be dropped from the aggregate")

	successes := 0
	failures := 0
	for _, outcome := range outcomes {
		if outcome.IsSuccess() {
			successes++
		} else {
			failures++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 2, failures)

	mockRepo.AssertExpectations(t)
}

func TestRefresh_WindowSpansLookahead(t *testing.T) {
	var before, after time.Time

	mockRepo := new(mocks.MockRepository)
	mockRepo.On("GetConnectionsToRefresh", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			before = args.Get(1).(time.Time)
			after = args.Get(2).(time.Time)
		}).
		Return([]models.Connection{}, nil)

	refresher := newRefresher(mockRepo, new(mocks.MockSecretsClient))

	require.NoError(t, refresher.Refresh(t.Context(), 10))

	assert.Equal(t, 10*time.Minute, after.Sub(before))
	assert.WithinDuration(t, time.Now(), before, 5*time.Second)
}

func TestRefresh_DiscoveryErrorEscalates(t *testing.T) {
	mockRepo := new(mocks.MockRepository)
	mockRepo.On("GetConnectionsToRefresh", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	refresher := newRefresher(mockRepo, new(mocks.MockSecretsClient))

	err := refresher.Refresh(t.Context(), 10)
	require.Error(t, err)

	// The snapshot is untouched by a failed discovery
	assert.Equal(t, json.RawMessage("null"), refresher.Query().State)
}

func TestRefresh_EmptyWindowUpdatesSnapshot(t *testing.T) {
	mockRepo := new(mocks.MockRepository)
	mockRepo.On("GetConnectionsToRefresh", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Connection{}, nil)

	refresher := newRefresher(mockRepo, new(mocks.MockSecretsClient))

	require.NoError(t, refresher.Refresh(t.Context(), 10))

	var outcomes []models.Outcome
	require.NoError(t, json.Unmarshal(refresher.Query().State, &outcomes))
	assert.Empty(t, outcomes)
}
