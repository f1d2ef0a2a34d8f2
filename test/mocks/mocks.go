package mocks

import (
	"context"
	"time"

	"oauth-refresh/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of database.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockRepository) GetConnectionsToRefresh(ctx context.Context, refreshBefore, refreshAfter time.Time) ([]models.Connection, error) {
	args := m.Called(ctx, refreshBefore, refreshAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Connection), args.Error(1)
}

func (m *MockRepository) UpdateConnectionOAuth(ctx context.Context, id string, oauth *models.OAuth, secretsServiceID string) error {
	args := m.Called(ctx, id, oauth, secretsServiceID)
	return args.Error(0)
}

func (m *MockRepository) GetOAuthDefinition(ctx context.Context, id string) (*models.OAuthDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OAuthDefinition), args.Error(1)
}

func (m *MockRepository) GetAccessRecord(ctx context.Context, buildableID, key string) (*models.AccessRecord, error) {
	args := m.Called(ctx, buildableID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessRecord), args.Error(1)
}

func (m *MockRepository) GetAccessRecordByKey(ctx context.Context, accessKey string) (*models.AccessRecord, error) {
	args := m.Called(ctx, accessKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessRecord), args.Error(1)
}

// MockSecretsClient is a mock implementation of secrets.Client
type MockSecretsClient struct {
	mock.Mock
}

func (m *MockSecretsClient) GetSecret(ctx context.Context, id, buildableID string, env models.Environment) (*models.OAuthSecret, error) {
	args := m.Called(ctx, id, buildableID, env)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OAuthSecret), args.Error(1)
}

func (m *MockSecretsClient) CreateSecret(ctx context.Context, buildableID string, payload models.OAuthSecret, env models.Environment) (*models.Secret, error) {
	args := m.Called(ctx, buildableID, payload, env)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Secret), args.Error(1)
}
