package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"oauth-refresh/internal/database"
	"oauth-refresh/internal/models"
	"oauth-refresh/internal/transport"
	svcerrors "oauth-refresh/pkg/errors"

	"go.uber.org/zap"
)

// Well-known access-control keys. Test and development environments share
// one key, live and production the other.
const (
	productionKey = "event_access::custom::live::default::internal-ui"
	testKey       = "event_access::custom::test::default::internal-ui"
)

// Client is the interface the refresh pipeline uses to talk to the external
// secrets service.
type Client interface {
	GetSecret(ctx context.Context, id, buildableID string, env models.Environment) (*models.OAuthSecret, error)
	CreateSecret(ctx context.Context, buildableID string, payload models.OAuthSecret, env models.Environment) (*models.Secret, error)
}

// HTTPClient resolves a tenant-scoped access credential and round-trips
// opaque secret records through the secrets service over HTTP.
type HTTPClient struct {
	getURL       string
	createURL    string
	secretHeader string
	client       *http.Client
	repo         database.Repository
	logger       *zap.Logger
}

type createSecretRequest struct {
	Secret interface{} `json:"secret"`
}

// NewHTTPClient creates a new secrets client
func NewHTTPClient(getURL, createURL, secretHeader string, client *http.Client, repo database.Repository, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		getURL:       getURL,
		createURL:    createURL,
		secretHeader: secretHeader,
		client:       client,
		repo:         repo,
		logger:       logger,
	}
}

// GetSecret fetches a secret record by id and decodes its payload into the
// normalized oauth secret shape.
func (c *HTTPClient) GetSecret(ctx context.Context, id, buildableID string, env models.Environment) (*models.OAuthSecret, error) {
	accessKey, err := c.resolveAccessKey(ctx, buildableID, env)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("%s/%s", c.getURL, id)
	resp, err := transport.Do(ctx, c.client, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(c.secretHeader, accessKey)
		return req, nil
	})
	if err != nil {
		c.logger.Warn("Failed to fetch secret", zap.String("secret_id", id), zap.Error(err))
		return nil, svcerrors.Wrap(err, svcerrors.ErrTransport)
	}
	defer resp.Body.Close()

	record, err := decodeSecretRecord(resp)
	if err != nil {
		c.logger.Warn("Failed to decode secret record", zap.String("secret_id", id), zap.Error(err))
		return nil, err
	}

	var secret models.OAuthSecret
	if err := json.Unmarshal(record.Secret, &secret); err != nil {
		c.logger.Warn("Failed to decode secret payload", zap.String("secret_id", id), zap.Error(err))
		return nil, svcerrors.Wrap(err, svcerrors.ErrSerialization)
	}

	return &secret, nil
}

// CreateSecret submits a new secret record for the tenant. Rotation is
// append, not overwrite; the superseded record is left in place.
func (c *HTTPClient) CreateSecret(ctx context.Context, buildableID string, payload models.OAuthSecret, env models.Environment) (*models.Secret, error) {
	accessKey, err := c.resolveAccessKey(ctx, buildableID, env)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(createSecretRequest{Secret: payload})
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrSerialization)
	}

	resp, err := transport.Do(ctx, c.client, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.createURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(c.secretHeader, accessKey)
		return req, nil
	})
	if err != nil {
		c.logger.Warn("Failed to create secret", zap.String("buildable_id", buildableID), zap.Error(err))
		return nil, svcerrors.Wrap(err, svcerrors.ErrTransport)
	}
	defer resp.Body.Close()

	return decodeSecretRecord(resp)
}

// resolveAccessKey looks up the tenant's access credential by the
// well-known key for the environment. Its absence is a hard failure,
// independent of the underlying secret operation.
func (c *HTTPClient) resolveAccessKey(ctx context.Context, buildableID string, env models.Environment) (string, error) {
	key := testKey
	if env.IsLive() {
		key = productionKey
	}

	record, err := c.repo.GetAccessRecord(ctx, buildableID, key)
	if err != nil {
		return "", svcerrors.Wrap(err, svcerrors.ErrInternalServer)
	}
	if record == nil {
		return "", svcerrors.WithMessage(svcerrors.ErrKeyNotFound, fmt.Sprintf("access record not found for %s", buildableID))
	}

	return record.AccessKey, nil
}

func decodeSecretRecord(resp *http.Response) (*models.Secret, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrTransport)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, svcerrors.WithMessage(svcerrors.ErrTransport, fmt.Sprintf("secrets service returned status %d", resp.StatusCode))
	}

	var record models.Secret
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrSerialization)
	}
	if record.ID == "" {
		return nil, svcerrors.WithMessage(svcerrors.ErrSerialization, "secrets service returned a record with no id")
	}

	return &record, nil
}
