package persistence

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
	"github.com/iota-uz/schemagov/pkg/composables"
)

type stubTx struct {
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return s, nil }
func (s *stubTx) Commit(ctx context.Context) error          { return nil }
func (s *stubTx) Rollback(ctx context.Context) error        { return nil }
func (s *stubTx) LargeObjects() pgx.LargeObjects            { return pgx.LargeObjects{} }
func (s *stubTx) Conn() *pgx.Conn                           { return nil }

func (s *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("copy not implemented")
}

func (s *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (s *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("prepare not implemented")
}

func (s *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if s.execFunc == nil {
		return pgconn.CommandTag{}, errors.New("exec not implemented")
	}
	return s.execFunc(ctx, sql, args...)
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc == nil {
		return nil, errors.New("query not implemented")
	}
	return s.queryFunc(ctx, sql, args...)
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc == nil {
		return stubRow{err: errors.New("query row not implemented")}
	}
	return s.queryRowFunc(ctx, sql, args...)
}

// stubRow assigns values to scan targets in order.
type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func withStubTx(tx *stubTx) context.Context {
	return composables.WithTx(context.Background(), tx)
}

func requestRow(id int64, status string, approver *string) stubRow {
	version := 3
	return stubRow{values: []any{
		id, 1, 10, "orders", "1", &version, `{"type":"string"}`,
		"remarks", false, "create", status, "alice", approver, (*string)(nil),
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), (*time.Time)(nil),
	}}
}

func TestSchemaRequestRepository_CreateMapsRow(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	tx := &stubTx{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		gotSQL, gotArgs = sql, args
		return requestRow(42, "created", nil)
	}}

	created, err := NewSchemaRequestRepository().Create(withStubTx(tx), &schemarequest.SchemaRequest{
		TenantID:      1,
		TeamID:        10,
		TopicName:     "orders",
		EnvironmentID: "1",
		SchemaFull:    `{"type":"string"}`,
		OperationType: schemarequest.OperationCreate,
		Status:        schemarequest.StatusCreated,
		Requestor:     "alice",
	})
	require.NoError(t, err)
	require.Contains(t, gotSQL, "INSERT INTO schema_requests")
	require.Equal(t, 1, gotArgs[0])
	require.Equal(t, "create", gotArgs[8])
	require.Equal(t, "created", gotArgs[9])

	require.Equal(t, int64(42), created.ID)
	require.Equal(t, schemarequest.StatusCreated, created.Status)
	require.Equal(t, 3, *created.SchemaVersion)
	require.Empty(t, created.Approver)
}

func TestSchemaRequestRepository_CreateDuplicatePending(t *testing.T) {
	tx := &stubTx{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return stubRow{err: &pgconn.PgError{Code: "23505", ConstraintName: pendingTopicIndex}}
	}}

	_, err := NewSchemaRequestRepository().Create(withStubTx(tx), &schemarequest.SchemaRequest{
		TenantID: 1, Status: schemarequest.StatusCreated, OperationType: schemarequest.OperationCreate,
	})
	require.ErrorIs(t, err, schemarequest.ErrPendingExists)
}

func TestSchemaRequestRepository_GetByIDNotFound(t *testing.T) {
	tx := &stubTx{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		require.Equal(t, []any{2, int64(7)}, args)
		return stubRow{err: pgx.ErrNoRows}
	}}

	_, err := NewSchemaRequestRepository().GetByID(withStubTx(tx), 2, 7)
	require.ErrorIs(t, err, schemarequest.ErrNotFound)
}

func TestSchemaRequestRepository_UpdateStatusConditional(t *testing.T) {
	approver := "bob"
	tx := &stubTx{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		require.Contains(t, sql, "status = 'created'")
		require.Equal(t, "approved", args[2])
		require.Equal(t, &approver, args[3])
		require.Nil(t, args[4])
		return requestRow(5, "approved", &approver)
	}}

	updated, err := NewSchemaRequestRepository().UpdateStatus(withStubTx(tx), 1, 5, schemarequest.Transition{
		Status: schemarequest.StatusApproved, Approver: "bob",
	})
	require.NoError(t, err)
	require.Equal(t, schemarequest.StatusApproved, updated.Status)
	require.Equal(t, "bob", updated.Approver)

	tx.queryRowFunc = func(ctx context.Context, sql string, args ...any) pgx.Row {
		return stubRow{err: pgx.ErrNoRows}
	}
	_, err = NewSchemaRequestRepository().UpdateStatus(withStubTx(tx), 1, 5, schemarequest.Transition{Status: schemarequest.StatusDeclined})
	require.ErrorIs(t, err, schemarequest.ErrNotPending)
}

func TestSchemaRequestRepository_UpdateStatusRejectsCreated(t *testing.T) {
	tx := &stubTx{}
	_, err := NewSchemaRequestRepository().UpdateStatus(withStubTx(tx), 1, 5, schemarequest.Transition{Status: schemarequest.StatusCreated})
	require.Error(t, err)
	require.NotErrorIs(t, err, schemarequest.ErrNotPending)
}

func TestSchemaRequestRepository_Delete(t *testing.T) {
	tx := &stubTx{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		require.Contains(t, sql, "requestor = $3")
		require.Equal(t, []any{1, int64(9), "alice"}, args)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}}

	removed, err := NewSchemaRequestRepository().Delete(withStubTx(tx), 1, 9, "alice")
	require.NoError(t, err)
	require.True(t, removed)

	tx.execFunc = func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	removed, err = NewSchemaRequestRepository().Delete(withStubTx(tx), 1, 9, "alice")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestBuildSchemaRequestFilters(t *testing.T) {
	status := schemarequest.StatusCreated
	team := 10
	where, args := buildSchemaRequestFilters(&schemarequest.FindParams{
		TenantID:         1,
		Status:           &status,
		Search:           " ord ",
		EnvironmentIDs:   []string{"1", "2"},
		ExcludeRequestor: "bob",
		TeamID:           &team,
	})
	require.Equal(t, []string{
		"tenant_id = $1",
		"status = $2",
		"topic_name ILIKE $3",
		"environment_id = ANY($4)",
		"requestor <> $5",
		"team_id = $6",
	}, where)
	require.Equal(t, []any{1, "created", "%ord%", pgtype.FlatArray[string]{"1", "2"}, "bob", 10}, args)

	where, _ = buildSchemaRequestFilters(&schemarequest.FindParams{TenantID: 1})
	require.Equal(t, []string{"tenant_id = $1"}, where)
}
