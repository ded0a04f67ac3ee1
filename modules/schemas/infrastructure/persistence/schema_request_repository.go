package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/persistence/models"
	"github.com/iota-uz/schemagov/pkg/composables"
)

const schemaRequestColumns = `id, tenant_id, team_id, topic_name, environment_id, schema_version, schema_full,
	remarks, force_register, operation_type, status, requestor, approver, decline_reason, request_time, approved_time`

// pendingTopicIndex is the partial unique index allowing one created request per tenant and topic.
const pendingTopicIndex = "schema_requests_pending_topic_key"

type SchemaRequestRepository struct{}

func NewSchemaRequestRepository() schemarequest.Repository {
	return &SchemaRequestRepository{}
}

func scanSchemaRequest(row pgx.Row) (*schemarequest.SchemaRequest, error) {
	var m models.SchemaRequest
	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.TeamID,
		&m.TopicName,
		&m.EnvironmentID,
		&m.SchemaVersion,
		&m.SchemaFull,
		&m.Remarks,
		&m.ForceRegister,
		&m.OperationType,
		&m.Status,
		&m.Requestor,
		&m.Approver,
		&m.DeclineReason,
		&m.RequestTime,
		&m.ApprovedTime,
	); err != nil {
		return nil, err
	}
	return toDomainSchemaRequest(&m)
}

func (r *SchemaRequestRepository) Create(ctx context.Context, req *schemarequest.SchemaRequest) (*schemarequest.SchemaRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m := toDBSchemaRequest(req)
	created, err := scanSchemaRequest(tx.QueryRow(ctx, `
		INSERT INTO schema_requests (tenant_id, team_id, topic_name, environment_id, schema_version, schema_full,
			remarks, force_register, operation_type, status, requestor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+schemaRequestColumns,
		m.TenantID,
		m.TeamID,
		m.TopicName,
		m.EnvironmentID,
		m.SchemaVersion,
		m.SchemaFull,
		m.Remarks,
		m.ForceRegister,
		m.OperationType,
		m.Status,
		m.Requestor,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == pendingTopicIndex {
			return nil, schemarequest.ErrPendingExists
		}
		return nil, gerrors.Wrap(err, "insert schema request")
	}
	return created, nil
}

func (r *SchemaRequestRepository) GetByID(ctx context.Context, tenantID int, id int64) (*schemarequest.SchemaRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	req, err := scanSchemaRequest(tx.QueryRow(ctx,
		`SELECT `+schemaRequestColumns+` FROM schema_requests WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemarequest.ErrNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "get schema request")
	}
	return req, nil
}

func (r *SchemaRequestRepository) Search(ctx context.Context, params *schemarequest.FindParams) ([]*schemarequest.SchemaRequest, error) {
	if params == nil {
		return nil, gerrors.New("schema request search requires a tenant")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildSchemaRequestFilters(params)
	rows, err := tx.Query(ctx, `
		SELECT `+schemaRequestColumns+`
		FROM schema_requests
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY request_time DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, gerrors.Wrap(err, "search schema requests")
	}
	defer rows.Close()

	var out []*schemarequest.SchemaRequest
	for rows.Next() {
		req, err := scanSchemaRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildSchemaRequestFilters(params *schemarequest.FindParams) ([]string, []any) {
	where := []string{"tenant_id = $1"}
	args := []any{params.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if params.Status != nil {
		add("status = $%d", params.Status.String())
	}
	if params.OperationType != nil {
		add("operation_type = $%d", params.OperationType.String())
	}
	if topic := strings.TrimSpace(params.Topic); topic != "" {
		add("topic_name = $%d", topic)
	}
	if env := strings.TrimSpace(params.EnvironmentID); env != "" {
		add("environment_id = $%d", env)
	}
	if q := strings.TrimSpace(params.Search); q != "" {
		add("topic_name ILIKE $%d", "%"+q+"%")
	}
	if params.EnvironmentIDs != nil {
		add("environment_id = ANY($%d)", pgtype.FlatArray[string](params.EnvironmentIDs))
	}
	if params.ExcludeRequestor != "" {
		add("requestor <> $%d", params.ExcludeRequestor)
	}
	if params.Requestor != "" {
		add("requestor = $%d", params.Requestor)
	}
	if params.TeamID != nil {
		add("team_id = $%d", *params.TeamID)
	}
	return where, args
}

// UpdateStatus moves a created request to t.Status. Rows that already left the created state are untouched.
func (r *SchemaRequestRepository) UpdateStatus(ctx context.Context, tenantID int, id int64, t schemarequest.Transition) (*schemarequest.SchemaRequest, error) {
	if !t.Status.Terminal() {
		return nil, gerrors.Errorf("invalid transition to %s", t.Status)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := scanSchemaRequest(tx.QueryRow(ctx, `
		UPDATE schema_requests
		SET status = $3::text,
			approver = $4,
			decline_reason = $5,
			approved_time = CASE WHEN $3::text = 'approved' THEN now() ELSE approved_time END
		WHERE tenant_id = $1 AND id = $2 AND status = 'created'
		RETURNING `+schemaRequestColumns,
		tenantID, id, t.Status.String(), nullable(t.Approver), nullable(t.DeclineReason),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemarequest.ErrNotPending
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "update schema request status")
	}
	return updated, nil
}

func (r *SchemaRequestRepository) Delete(ctx context.Context, tenantID int, id int64, requestor string) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM schema_requests WHERE tenant_id = $1 AND id = $2 AND requestor = $3 AND status = 'created'`,
		tenantID, id, requestor,
	)
	if err != nil {
		return false, gerrors.Wrap(err, "delete schema request")
	}
	return tag.RowsAffected() > 0, nil
}
