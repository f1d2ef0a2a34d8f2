package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"oauth-refresh/internal/models"

	"go.uber.org/zap"
	"gocloud.dev/postgres"
	_ "gocloud.dev/postgres/awspostgres"
	_ "gocloud.dev/postgres/gcppostgres"
)

// Repository defines the interface for database operations
type Repository interface {
	Close() error

	// Connections
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	GetConnectionsToRefresh(ctx context.Context, refreshBefore, refreshAfter time.Time) ([]models.Connection, error)
	UpdateConnectionOAuth(ctx context.Context, id string, oauth *models.OAuth, secretsServiceID string) error

	// OAuth definitions
	GetOAuthDefinition(ctx context.Context, id string) (*models.OAuthDefinition, error)

	// Access-control records
	GetAccessRecord(ctx context.Context, buildableID, key string) (*models.AccessRecord, error)
	GetAccessRecordByKey(ctx context.Context, accessKey string) (*models.AccessRecord, error)
}

// PostgresRepository handles database operations
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository creates a new repository instance
func NewRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (Repository, error) {
	// Retry connection with exponential backoff
	var db *sql.DB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = postgres.Open(ctx, databaseURL)
		if err == nil {
			// Test the connection
			if err = db.PingContext(ctx); err == nil {
				break
			}
			db.Close()
		}
		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			logger.Warn("Failed to connect to database, retrying...", zap.Int("attempt", i+1), zap.Duration("wait", waitTime), zap.Error(err))
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return &PostgresRepository{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// GetConnection retrieves a connection by id
func (r *PostgresRepository) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	query := `
		SELECT id, platform, buildable_id, environment, secrets_service_id, oauth
		FROM connections
		WHERE id = $1
	`

	conn, err := r.scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get connection", zap.String("connection_id", id), zap.Error(err))
		return nil, err
	}

	return conn, nil
}

// GetConnectionsToRefresh retrieves all oauth-enabled connections whose
// token expiry falls inside (refreshBefore, refreshAfter]. The lower bound
// is exclusive so a token expiring exactly now is not picked up this cycle.
func (r *PostgresRepository) GetConnectionsToRefresh(ctx context.Context, refreshBefore, refreshAfter time.Time) ([]models.Connection, error) {
	query := `
		SELECT id, platform, buildable_id, environment, secrets_service_id, oauth
		FROM connections
		WHERE (oauth->'enabled'->>'expiresAt')::bigint > $1
		  AND (oauth->'enabled'->>'expiresAt')::bigint <= $2
	`

	rows, err := r.db.QueryContext(ctx, query, refreshBefore.Unix(), refreshAfter.Unix())
	if err != nil {
		r.logger.Error("Failed to query connections to refresh", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var connections []models.Connection
	for rows.Next() {
		conn, err := r.scanConnection(rows)
		if err != nil {
			r.logger.Error("Failed to scan connection", zap.Error(err))
			return nil, err
		}
		connections = append(connections, *conn)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return connections, nil
}

// UpdateConnectionOAuth updates a connection's oauth state and secrets
// service reference, addressed by connection id. This is the terminal write
// of a refresh attempt.
func (r *PostgresRepository) UpdateConnectionOAuth(ctx context.Context, id string, oauth *models.OAuth, secretsServiceID string) error {
	data, err := json.Marshal(oauth)
	if err != nil {
		r.logger.Error("Failed to serialize oauth state", zap.String("connection_id", id), zap.Error(err))
		return err
	}

	query := `
		UPDATE connections
		SET oauth = $1, secrets_service_id = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, data, secretsServiceID, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update connection oauth", zap.String("connection_id", id), zap.Error(err))
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// GetOAuthDefinition retrieves an oauth definition by id. Definitions are
// fetched fresh per refresh attempt; edits take effect on the next cycle.
func (r *PostgresRepository) GetOAuthDefinition(ctx context.Context, id string) (*models.OAuthDefinition, error) {
	query := `
		SELECT id, definition
		FROM oauth_definitions
		WHERE id = $1
	`

	var defID string
	var data []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&defID, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get oauth definition", zap.String("definition_id", id), zap.Error(err))
		return nil, err
	}

	var definition models.OAuthDefinition
	if err := json.Unmarshal(data, &definition); err != nil {
		r.logger.Error("Failed to unmarshal oauth definition", zap.String("definition_id", id), zap.Error(err))
		return nil, err
	}
	definition.ID = defID

	return &definition, nil
}

// GetAccessRecord retrieves a live access record for a tenant by its
// well-known key. Soft-deleted records are never returned.
func (r *PostgresRepository) GetAccessRecord(ctx context.Context, buildableID, key string) (*models.AccessRecord, error) {
	query := `
		SELECT buildable_id, key, access_key, deleted
		FROM event_access
		WHERE buildable_id = $1 AND key = $2 AND deleted = false
	`

	var record models.AccessRecord
	err := r.db.QueryRowContext(ctx, query, buildableID, key).Scan(
		&record.BuildableID,
		&record.Key,
		&record.AccessKey,
		&record.Deleted,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get access record", zap.String("buildable_id", buildableID), zap.Error(err))
		return nil, err
	}

	return &record, nil
}

// GetAccessRecordByKey resolves a live access record by the credential
// itself. Used by the integration auth middleware.
func (r *PostgresRepository) GetAccessRecordByKey(ctx context.Context, accessKey string) (*models.AccessRecord, error) {
	query := `
		SELECT buildable_id, key, access_key, deleted
		FROM event_access
		WHERE access_key = $1 AND deleted = false
	`

	var record models.AccessRecord
	err := r.db.QueryRowContext(ctx, query, accessKey).Scan(
		&record.BuildableID,
		&record.Key,
		&record.AccessKey,
		&record.Deleted,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get access record by key", zap.Error(err))
		return nil, err
	}

	return &record, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresRepository) scanConnection(row scanner) (*models.Connection, error) {
	var conn models.Connection
	var oauth []byte
	var secretsServiceID sql.NullString

	err := row.Scan(
		&conn.ID,
		&conn.Platform,
		&conn.BuildableID,
		&conn.Environment,
		&secretsServiceID,
		&oauth,
	)
	if err != nil {
		return nil, err
	}

	if secretsServiceID.Valid {
		conn.SecretsServiceID = secretsServiceID.String
	}

	if len(oauth) > 0 {
		var state models.OAuth
		if err := json.Unmarshal(oauth, &state); err != nil {
			return nil, err
		}
		conn.OAuth = &state
	}

	return &conn, nil
}
