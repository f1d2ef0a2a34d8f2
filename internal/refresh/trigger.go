package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oauth-refresh/internal/database"
	"oauth-refresh/internal/models"
	"oauth-refresh/internal/secrets"
	"oauth-refresh/internal/template"
	"oauth-refresh/internal/transport"
	svcerrors "oauth-refresh/pkg/errors"

	"go.uber.org/zap"
)

// Trigger is the per-connection refresh state machine. A run walks the
// steps strictly in order, short-circuits on the first failure and always
// folds the result into an Outcome; no provider-side or transient condition
// ever escapes as a process-fatal error.
type Trigger struct {
	repo    database.Repository
	secrets secrets.Client
	engine  *template.Engine
	client  *http.Client
	logger  *zap.Logger
}

// NewTrigger creates a new trigger state machine
func NewTrigger(repo database.Repository, secretsClient secrets.Client, engine *template.Engine, client *http.Client, logger *zap.Logger) *Trigger {
	return &Trigger{
		repo:    repo,
		secrets: secretsClient,
		engine:  engine,
		client:  client,
		logger:  logger,
	}
}

// Trigger refreshes a single connection and reports the outcome. It never
// returns a hard error to its caller.
func (t *Trigger) Trigger(ctx context.Context, conn models.Connection) models.Outcome {
	metadata := map[string]interface{}{"id": conn.ID}

	if err := t.run(ctx, conn); err != nil {
		t.logger.Warn("Refresh attempt failed", zap.String("connection_id", conn.ID), zap.Error(err))
		return models.Failure(err, metadata)
	}

	t.logger.Info("Connection refreshed", zap.String("connection_id", conn.ID))
	return models.Success(conn.ID, metadata)
}

func (t *Trigger) run(ctx context.Context, conn models.Connection) error {
	// Extract the definition reference
	if !conn.IsEnabled() {
		return svcerrors.WithMessage(svcerrors.ErrNotFound, fmt.Sprintf("connection %s has no oauth", conn.ID))
	}
	definitionID := conn.OAuth.Enabled.DefinitionID

	// Load the definition, fetched fresh so provider-config edits take
	// effect on the next cycle
	definition, err := t.repo.GetOAuthDefinition(ctx, definitionID)
	if err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrNotFound)
	}
	if definition == nil {
		return svcerrors.WithMessage(svcerrors.ErrNotFound, fmt.Sprintf("oauth definition %s not found", definitionID))
	}

	// Fetch the current secret
	secret, err := t.secrets.GetSecret(ctx, conn.SecretsServiceID, conn.BuildableID, conn.Environment)
	if err != nil {
		return err
	}

	// Optional full-template pre-render: the definition itself may embed
	// secret fields, e.g. a per-tenant subdomain in its URI
	if definition.FullTemplate {
		var rendered models.OAuthDefinition
		if err := t.engine.RenderInto(definition, secret, &rendered); err != nil {
			return err
		}
		definition = &rendered
	}

	// Compute the transform, if the definition declares one
	var computation *models.Computation
	if definition.Compute.Computation != nil {
		computation, err = t.engine.Compute(*definition.Compute.Computation, secret)
		if err != nil {
			return err
		}
	}

	// Build the request parts
	body, err := t.body(computation, secret)
	if err != nil {
		return err
	}

	var headerCtx, queryCtx interface{}
	if computation != nil {
		headerCtx = computation.Headers
		queryCtx = computation.QueryParams
	}

	headers, err := t.engine.Headers(definition.Configuration.Headers, headerCtx)
	if err != nil {
		return err
	}

	query, err := t.engine.Query(definition.Configuration.QueryParams, queryCtx)
	if err != nil {
		return err
	}

	// Execute against the provider's token endpoint
	raw, err := t.execute(ctx, definition, headers, query, body)
	if err != nil {
		return err
	}

	// Decode the response; the original secret rides along so the
	// transform can fall back to prior values the provider omitted
	document := map[string]interface{}{
		"body":   json.RawMessage(raw),
		"secret": secret,
	}
	decoded, err := t.engine.DecodeResponse(definition.Compute.Response, document)
	if err != nil {
		return err
	}

	// Rotate the secret: create, not update
	rotated := secret.FromRefresh(*decoded, raw)
	created, err := t.secrets.CreateSecret(ctx, conn.BuildableID, rotated, conn.Environment)
	if err != nil {
		return err
	}

	// Terminal write: persist the new expiry and secret reference
	oauth := &models.OAuth{
		Enabled: &models.OAuthEnabled{
			DefinitionID: definitionID,
			ExpiresAt:    time.Now().Add(time.Duration(rotated.ExpiresIn) * time.Second).Unix(),
			ExpiresIn:    rotated.ExpiresIn,
		},
	}
	if err := t.repo.UpdateConnectionOAuth(ctx, conn.ID, oauth, created.ID); err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrInternalServer)
	}

	return nil
}

// body renders the computation's body sub-payload against the secret
// payload. No computation, or a computation without a body, is valid.
func (t *Trigger) body(computation *models.Computation, secret *models.OAuthSecret) (interface{}, error) {
	if computation == nil || computation.Body == nil {
		return nil, nil
	}
	return t.engine.Render(computation.Body, secret)
}

// execute POSTs the built request to the definition's URI. Construction
// and transport failures both collapse into the generic transport kind.
func (t *Trigger) execute(ctx context.Context, definition *models.OAuthDefinition, headers http.Header, query url.Values, body interface{}) (json.RawMessage, error) {
	resp, err := transport.Do(ctx, t.client, func() (*http.Request, error) {
		return buildRequest(definition, headers, query, body)
	})
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrTransport)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, svcerrors.Wrap(err, svcerrors.ErrTransport)
	}

	if !json.Valid(raw) {
		return nil, svcerrors.WithMessage(svcerrors.ErrSerialization, "provider response is not valid JSON")
	}

	return raw, nil
}

func buildRequest(definition *models.OAuthDefinition, headers http.Header, query url.Values, body interface{}) (*http.Request, error) {
	uri := definition.Configuration.URI
	if len(query) > 0 {
		separator := "?"
		if strings.Contains(uri, "?") {
			separator = "&"
		}
		uri += separator + query.Encode()
	}

	var reader io.Reader
	contentType := ""

	switch definition.Configuration.Content {
	case models.ContentTypeJSON:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	case models.ContentTypeForm:
		form, err := formValues(body)
		if err != nil {
			return nil, err
		}
		reader = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		// No recognized content type: the body is dropped and only query
		// parameters are sent
	}

	req, err := http.NewRequest(http.MethodPost, uri, reader)
	if err != nil {
		return nil, err
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

// formValues flattens a rendered body into form fields.
func formValues(body interface{}) (url.Values, error) {
	if body == nil {
		return url.Values{}, nil
	}

	fields, ok := body.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("form body must be an object, got %T", body)
	}

	values := make(url.Values, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			values.Set(key, v)
		case nil:
			values.Set(key, "")
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			values.Set(key, string(data))
		}
	}

	return values, nil
}
