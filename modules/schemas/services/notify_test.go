package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/domain/events"
	"github.com/iota-uz/schemagov/pkg/composables"
	"github.com/iota-uz/schemagov/pkg/outbox"
	"github.com/iota-uz/schemagov/pkg/repo"
)

type nopTx struct{}

func (nopTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (nopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (nopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

type recordingPublisher struct {
	msgs    []outbox.Message
	tenants []int
	err     error
}

func (p *recordingPublisher) Enqueue(ctx context.Context, tx repo.Tx, msg outbox.Message) (int64, error) {
	tenantID, _ := composables.UseTenantID(ctx)
	p.tenants = append(p.tenants, tenantID)
	p.msgs = append(p.msgs, msg)
	return int64(len(p.msgs)), p.err
}

func stubNotifySeams(t *testing.T) {
	t.Helper()
	prevTx, prevUseTx, prevNow, prevID := inTenantTxFn, useTxFn, nowFn, newIDFn
	inTenantTxFn = func(ctx context.Context, tenantID int, fn func(context.Context) error) error {
		return fn(composables.WithTenantID(ctx, tenantID))
	}
	useTxFn = func(ctx context.Context) (repo.Tx, error) { return nopTx{}, nil }
	nowFn = func() time.Time { return baseTime }
	newIDFn = func() uuid.UUID { return uuid.MustParse("7f0b1d6e-8d4c-4b7e-9d7a-3f6f0c1d2e3a") }
	t.Cleanup(func() {
		inTenantTxFn, useTxFn, nowFn, newIDFn = prevTx, prevUseTx, prevNow, prevID
	})
}

func TestOutboxSink_EnqueuesEvent(t *testing.T) {
	stubNotifySeams(t)
	pub := &recordingPublisher{}
	sink := NewOutboxSink(pub)

	err := sink.Send(context.Background(), Notification{
		TenantID:  tenantA,
		RequestID: 12,
		Type:      events.SchemaRequestDenied,
		TopicName: "orders",
		Reason:    "missing doc fields",
		Recipient: "alice",
		LoginURL:  "https://schemas.example.test/login",
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, []int{tenantA}, pub.tenants)

	msg := pub.msgs[0]
	assert.Equal(t, events.TopicSchemaRequestDeclinedV1, msg.Topic)
	assert.Equal(t, tenantA, msg.TenantID)
	assert.Equal(t, "7f0b1d6e-8d4c-4b7e-9d7a-3f6f0c1d2e3a", msg.EventID.String())

	var ev events.SchemaRequestEventV1
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, msg.EventID, ev.EventID)
	assert.Equal(t, events.EventVersionV1, ev.EventVersion)
	assert.Equal(t, int64(12), ev.RequestID)
	assert.Equal(t, events.SchemaRequestDenied, ev.Type)
	assert.Equal(t, "missing doc fields", ev.Reason)
	assert.Equal(t, "alice", ev.Recipient)
	assert.Nil(t, ev.Version)
	assert.True(t, baseTime.Equal(ev.OccurredAt))
}

func TestOutboxSink_RejectsUnknownType(t *testing.T) {
	stubNotifySeams(t)
	pub := &recordingPublisher{}

	err := NewOutboxSink(pub).Send(context.Background(), Notification{TenantID: tenantA, Type: "SCHEMA_EXPLODED"})
	require.Error(t, err)
	require.Empty(t, pub.msgs)
}

func TestOutboxSink_PropagatesEnqueueError(t *testing.T) {
	stubNotifySeams(t)
	pub := &recordingPublisher{err: errBoom}

	err := NewOutboxSink(pub).Send(context.Background(), Notification{TenantID: tenantA, Type: events.SchemaRequested})
	require.ErrorIs(t, err, errBoom)
}

type recordingMailer struct {
	sent []Mail
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, mail Mail) error {
	m.sent = append(m.sent, mail)
	return m.err
}

func newTestMailHandler(mailer Mailer) (*MailHandler, *test.Hook) {
	logger, hook := test.NewNullLogger()
	dir := &fakeDirectory{users: []*directory.User{
		{Username: "alice", TenantID: tenantA, Email: "alice@payments.example"},
		{Username: "bob", TenantID: tenantA},
	}}
	return NewMailHandler(dir, mailer, "corp.example", logrus.NewEntry(logger)), hook
}

func TestMailHandler_SendsToDirectoryEmail(t *testing.T) {
	mailer := &recordingMailer{}
	h, hook := newTestMailHandler(mailer)

	err := h.Handle(&outbox.Meta{EventID: uuid.New(), Attempts: 1}, &events.SchemaRequestEventV1{
		Type:      events.SchemaRequestDenied,
		TopicName: "orders",
		Reason:    "missing doc fields",
		Recipient: "alice",
		LoginURL:  "https://schemas.example.test/login",
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)

	m := mailer.sent[0]
	assert.Equal(t, "alice@payments.example", m.To)
	assert.Equal(t, "Schema request declined", m.Subject)
	assert.Contains(t, m.Body, "orders")
	assert.Contains(t, m.Body, "Reason: missing doc fields")
	assert.True(t, strings.HasSuffix(m.Body, "https://schemas.example.test/login"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "schemas.mail", hook.LastEntry().Data["component"])
}

func TestMailHandler_FallsBackToDefaultDomain(t *testing.T) {
	mailer := &recordingMailer{}
	h, _ := newTestMailHandler(mailer)

	for _, user := range []string{"bob", "zoe"} {
		err := h.Handle(&outbox.Meta{EventID: uuid.New()}, &events.SchemaRequestEventV1{
			Type: events.SchemaRequestApproved, TopicName: "orders", Recipient: user,
		})
		require.NoError(t, err)
	}
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "bob@corp.example", mailer.sent[0].To)
	assert.Equal(t, "zoe@corp.example", mailer.sent[1].To)
}

func TestMailHandler_MailerErrorIsRetried(t *testing.T) {
	mailer := &recordingMailer{err: errBoom}
	h, _ := newTestMailHandler(mailer)

	err := h.Handle(&outbox.Meta{EventID: uuid.New()}, &events.SchemaRequestEventV1{
		Type: events.SchemaRequested, TopicName: "orders", Recipient: "alice",
	})
	require.ErrorIs(t, err, errBoom)
}

func TestMailHandler_UnknownTypeIsDropped(t *testing.T) {
	mailer := &recordingMailer{}
	h, _ := newTestMailHandler(mailer)

	err := h.Handle(&outbox.Meta{EventID: uuid.New()}, &events.SchemaRequestEventV1{Type: "OTHER", Recipient: "alice"})
	require.NoError(t, err)
	require.Empty(t, mailer.sent)
}
