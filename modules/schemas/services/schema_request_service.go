package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/schemagov/modules/schemas/access"
	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/domain/environment"
	"github.com/iota-uz/schemagov/modules/schemas/domain/events"
	"github.com/iota-uz/schemagov/modules/schemas/domain/registry"
	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
	"github.com/iota-uz/schemagov/modules/schemas/domain/topic"
	"github.com/iota-uz/schemagov/pkg/composables"
)

var tracer = otel.Tracer("schemagov/schemas")

// inTenantTxFn runs store access in a tenant-scoped transaction. Tests replace it to run without a pool.
var inTenantTxFn = composables.InTenantTx

// NotificationSink accepts schema request notifications. Errors are logged by the caller and never
// affect the outcome of the operation that produced them.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

type Notification struct {
	TenantID  int
	RequestID int64
	Type      events.MailType
	TopicName string
	Version   *int
	Reason    string
	Recipient string
	LoginURL  string
}

type SchemaRequestServiceOptions struct {
	// ValidateOnSave runs the registry compatibility check before a request is stored,
	// unless the request sets ForceRegister.
	ValidateOnSave bool
	LoginURL       string
}

type SchemaRequestDeps struct {
	Requests     schemarequest.Repository
	Environments environment.Repository
	Topics       topic.Repository
	Directory    directory.Repository
	Registry     registry.Adapter
	Gate         access.Gate
	Resolver     access.Resolver
	Sink         NotificationSink
}

// SchemaRequestService runs the schema request workflow: submit, promote, list, approve, decline, delete.
// It keeps no state between calls.
type SchemaRequestService struct {
	deps SchemaRequestDeps
	opts SchemaRequestServiceOptions
}

func NewSchemaRequestService(deps SchemaRequestDeps, opts SchemaRequestServiceOptions) *SchemaRequestService {
	return &SchemaRequestService{deps: deps, opts: opts}
}

type SubmitInput struct {
	TopicName     string
	EnvironmentID string
	SchemaFull    string
	SchemaVersion *int
	Remarks       string
	ForceRegister bool
}

type PromotionInput struct {
	TopicName           string
	SourceEnvironmentID string
	TargetEnvironmentID string
	SchemaVersion       int
	Remarks             string
	ForceRegister       bool
}

func (s *SchemaRequestService) start(ctx context.Context, op string, p access.Principal, attrs ...attribute.KeyValue) (context.Context, trace.Span, *logrus.Entry) {
	attrs = append(attrs, attribute.String("schemas.principal", p.Username))
	ctx, span := tracer.Start(ctx, "schemas."+op, trace.WithAttributes(attrs...))
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "schemas.engine",
		"operation": op,
		"principal": p.Username,
	})
	return ctx, span, logger
}

func finish(span trace.Span, op string, res Result, err error) {
	observe(op, res, err)
	span.SetAttributes(attribute.String("schemas.result", string(res.Status)))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// authorize checks the gate; ok=false means res holds the outcome to return.
func (s *SchemaRequestService) authorize(ctx context.Context, p access.Principal, perm access.Permission) (res Result, allowed bool, err error) {
	if !p.Valid() {
		return denied(), false, nil
	}
	allowed, err = s.deps.Gate.IsAuthorized(ctx, p, perm)
	if err != nil {
		return Result{}, false, gerrors.Wrap(err, "authorize")
	}
	if !allowed {
		return denied(), false, nil
	}
	return Result{}, true, nil
}

// Preflight runs only the permission gate. A zero Result means the principal may go on; callers use
// it to refuse before looking at the input.
func (s *SchemaRequestService) Preflight(ctx context.Context, p access.Principal, perm access.Permission) (Result, error) {
	res, _, err := s.authorize(ctx, p, perm)
	return res, err
}

// resolve returns a nil scope for principals the directory does not know.
func (s *SchemaRequestService) resolve(ctx context.Context, p access.Principal) (*access.Scope, error) {
	scope, err := s.deps.Resolver.Resolve(ctx, p)
	if errors.Is(err, ErrUnknownPrincipal) {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "resolve scope")
	}
	return scope, nil
}

// ownsTopic reports whether the scope's team owns topicName in the scope's tenant.
func (s *SchemaRequestService) ownsTopic(ctx context.Context, scope *access.Scope, topicName string) (bool, error) {
	if strings.TrimSpace(topicName) == "" {
		return false, nil
	}
	owner, err := s.deps.Topics.Owner(ctx, scope.TenantID, topicName)
	if errors.Is(err, topic.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, gerrors.Wrap(err, "topic owner")
	}
	return owner.TeamID == scope.TeamID, nil
}

func (s *SchemaRequestService) notify(ctx context.Context, logger *logrus.Entry, n Notification) {
	if s.deps.Sink == nil {
		return
	}
	n.LoginURL = s.opts.LoginURL
	if err := s.deps.Sink.Send(ctx, n); err != nil {
		logger.WithError(err).WithField("mail_type", n.Type).Warn("schemas: notification not sent")
	}
}

// SubmitSchemaRequest stores a new CREATED request for a topic owned by the caller's team.
func (s *SchemaRequestService) SubmitSchemaRequest(ctx context.Context, p access.Principal, in SubmitInput) (res Result, err error) {
	const op = "SubmitSchemaRequest"
	ctx, span, logger := s.start(ctx, op, p,
		attribute.String("schemas.topic", in.TopicName),
		attribute.String("schemas.environment", in.EnvironmentID),
	)
	defer func() { finish(span, op, res, err) }()

	if res, allowed, err := s.authorize(ctx, p, access.RequestCreateSchemas); !allowed {
		return res, err
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}
	if !scope.CanSee(in.EnvironmentID) {
		return denied(), nil
	}

	if s.opts.ValidateOnSave && !in.ForceRegister {
		verdict, err := s.deps.Registry.Validate(ctx, scope.TenantID, in.EnvironmentID, in.TopicName, in.SchemaFull)
		if err != nil {
			logger.WithError(err).Warn("schemas: compatibility check failed")
			return upstream(msgValidateFailPrefix, err.Error()), nil
		}
		if !verdict.Valid {
			return invalid(verdict.Message), nil
		}
	}

	if !json.Valid([]byte(in.SchemaFull)) {
		return invalid(MsgInvalidJSON), nil
	}

	var created *schemarequest.SchemaRequest
	err = inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		owns, err := s.ownsTopic(txCtx, scope, in.TopicName)
		if err != nil {
			return err
		}
		if !owns {
			res = invalid(MsgTopicNotOwned)
			return nil
		}

		status := schemarequest.StatusCreated
		pending, err := s.deps.Requests.Search(txCtx, &schemarequest.FindParams{
			TenantID:       scope.TenantID,
			Status:         &status,
			Topic:          in.TopicName,
			EnvironmentIDs: scope.EnvIDs(),
		})
		if err != nil {
			return gerrors.Wrap(err, "search pending requests")
		}
		for _, r := range pending {
			if r.Status == schemarequest.StatusCreated && r.TopicName == in.TopicName && scope.CanSee(r.EnvironmentID) {
				res = conflict(MsgRequestExists)
				return nil
			}
		}

		created, err = s.deps.Requests.Create(txCtx, &schemarequest.SchemaRequest{
			TenantID:      scope.TenantID,
			TeamID:        scope.TeamID,
			TopicName:     in.TopicName,
			EnvironmentID: in.EnvironmentID,
			SchemaVersion: in.SchemaVersion,
			SchemaFull:    in.SchemaFull,
			Remarks:       in.Remarks,
			ForceRegister: in.ForceRegister,
			OperationType: schemarequest.OperationCreate,
			Status:        schemarequest.StatusCreated,
			Requestor:     p.Username,
		})
		if errors.Is(err, schemarequest.ErrPendingExists) {
			// The unique violation aborted the transaction; it must roll back.
			return err
		}
		if err != nil {
			return gerrors.Wrap(err, "create schema request")
		}
		return nil
	})
	if errors.Is(err, schemarequest.ErrPendingExists) {
		logger.Info("schemas: concurrent request for topic already exists")
		return conflict(MsgRequestExists), nil
	}
	if err != nil {
		logger.WithError(err).Error("schemas: submit failed")
		return Result{}, err
	}
	if created == nil {
		return res, nil
	}

	logger.WithField("request_id", created.ID).Info("schemas: request created")
	s.notify(ctx, logger, Notification{
		TenantID:  created.TenantID,
		RequestID: created.ID,
		Type:      events.SchemaRequested,
		TopicName: created.TopicName,
		Recipient: created.Requestor,
	})
	return ok(created.ID), nil
}

// ValidateSchema runs the registry compatibility check without storing anything.
func (s *SchemaRequestService) ValidateSchema(ctx context.Context, p access.Principal, in SubmitInput) (res Result, err error) {
	const op = "ValidateSchema"
	ctx, span, logger := s.start(ctx, op, p, attribute.String("schemas.topic", in.TopicName))
	defer func() { finish(span, op, res, err) }()

	if res, allowed, err := s.authorize(ctx, p, access.RequestCreateSchemas); !allowed {
		return res, err
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}
	if !scope.CanSee(in.EnvironmentID) {
		return denied(), nil
	}
	verdict, err := s.deps.Registry.Validate(ctx, scope.TenantID, in.EnvironmentID, in.TopicName, in.SchemaFull)
	if err != nil {
		logger.WithError(err).Warn("schemas: compatibility check failed")
		return upstream(msgValidateFailPrefix, err.Error()), nil
	}
	if !verdict.Valid {
		return invalid(verdict.Message), nil
	}
	return Result{Status: ResultOK, Message: verdict.Message}, nil
}

// sourceRegistry finds envID among the tenant's schema registry environments visible to scope.
func (s *SchemaRequestService) sourceRegistry(ctx context.Context, scope *access.Scope, envID string) (*environment.Environment, error) {
	var found *environment.Environment
	err := inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		envs, err := s.deps.Environments.ListByType(txCtx, scope.TenantID, environment.TypeSchemaRegistry)
		if err != nil {
			return gerrors.Wrap(err, "list schema registry environments")
		}
		for _, env := range envs {
			if env.ID == envID && scope.CanSee(env.ID) {
				found = env
				return nil
			}
		}
		return nil
	})
	return found, err
}

// PromoteSchema copies a registered schema version from a source registry into a new request
// against the target environment.
func (s *SchemaRequestService) PromoteSchema(ctx context.Context, p access.Principal, in PromotionInput) (res Result, err error) {
	const op = "PromoteSchema"
	ctx, span, logger := s.start(ctx, op, p,
		attribute.String("schemas.topic", in.TopicName),
		attribute.String("schemas.source_environment", in.SourceEnvironmentID),
		attribute.Int("schemas.version", in.SchemaVersion),
	)
	defer func() { finish(span, op, res, err) }()

	if res, allowed, err := s.authorize(ctx, p, access.RequestCreateSchemas); !allowed {
		return res, err
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}

	var owns bool
	err = inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		var err error
		owns, err = s.ownsTopic(txCtx, scope, in.TopicName)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if !owns {
		return invalid(MsgTopicNotOwned), nil
	}

	source, err := s.sourceRegistry(ctx, scope, in.SourceEnvironmentID)
	if err != nil {
		return Result{}, err
	}
	if source == nil {
		return invalid(MsgSourceRegistry), nil
	}

	versions, err := s.deps.Registry.ListVersions(ctx, scope.TenantID, source.ID, in.TopicName)
	if errors.Is(err, registry.ErrSubjectNotFound) {
		return invalid(MsgVersionNotFound), nil
	}
	if err != nil {
		logger.WithError(err).Warn("schemas: listing source versions failed")
		return upstream(msgVersionsFailPrefix, err.Error()), nil
	}
	logger.WithFields(logrus.Fields{
		"version":  in.SchemaVersion,
		"versions": len(versions),
	}).Info("schemas: promoting schema version")

	var picked *registry.Version
	for i := range versions {
		if versions[i].Version == in.SchemaVersion {
			picked = &versions[i]
			break
		}
	}
	if picked == nil {
		return invalid(MsgVersionNotFound), nil
	}

	pretty, err := prettyJSON(picked.Schema)
	if err != nil {
		return Result{}, fmt.Errorf("format schema version %d of %s: %w", picked.Version, in.TopicName, err)
	}

	version := in.SchemaVersion
	return s.SubmitSchemaRequest(ctx, p, SubmitInput{
		TopicName:     in.TopicName,
		EnvironmentID: in.TargetEnvironmentID,
		SchemaFull:    pretty,
		SchemaVersion: &version,
		Remarks:       in.Remarks,
		ForceRegister: in.ForceRegister,
	})
}

func prettyJSON(raw string) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// loadForDecision loads a request that an approver is about to approve or decline.
// A nil request means res holds the outcome.
func (s *SchemaRequestService) loadForDecision(ctx context.Context, scope *access.Scope, id int64) (*schemarequest.SchemaRequest, Result, error) {
	var req *schemarequest.SchemaRequest
	err := inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		var err error
		req, err = s.deps.Requests.GetByID(txCtx, scope.TenantID, id)
		return err
	})
	if errors.Is(err, schemarequest.ErrNotFound) {
		return nil, notFound(), nil
	}
	if err != nil {
		return nil, Result{}, gerrors.Wrap(err, "load schema request")
	}
	// Requests of another tenant never load; this guards stores that ignore the tenant argument.
	if req.TenantID != scope.TenantID {
		return nil, notFound(), nil
	}
	return req, Result{}, nil
}

func (s *SchemaRequestService) transition(ctx context.Context, scope *access.Scope, id int64, t schemarequest.Transition) (*schemarequest.SchemaRequest, error) {
	var updated *schemarequest.SchemaRequest
	err := inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		var err error
		updated, err = s.deps.Requests.UpdateStatus(txCtx, scope.TenantID, id, t)
		return err
	})
	return updated, err
}

// ApproveRequest registers the request's schema with the registry and marks it APPROVED.
// The requestor can never approve their own request.
func (s *SchemaRequestService) ApproveRequest(ctx context.Context, p access.Principal, id int64) (res Result, err error) {
	const op = "ApproveRequest"
	ctx, span, logger := s.start(ctx, op, p, attribute.Int64("schemas.request_id", id))
	defer func() { finish(span, op, res, err) }()
	logger = logger.WithField("request_id", id)

	if res, allowed, err := s.authorize(ctx, p, access.ApproveSchemas); !allowed {
		return res, err
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}
	req, res, err := s.loadForDecision(ctx, scope, id)
	if req == nil {
		return res, err
	}
	if req.Requestor == p.Username {
		return invalid(MsgSelfApproval), nil
	}
	if !scope.CanSee(req.EnvironmentID) {
		return denied(), nil
	}
	if req.Status.Terminal() {
		return conflict(MsgRequestGone), nil
	}

	reg, err := s.deps.Registry.Register(ctx, scope.TenantID, req.EnvironmentID, req.TopicName, req.SchemaFull)
	if err != nil {
		logger.WithError(err).Warn("schemas: registry upload failed")
		return upstream(msgUploadFailurePrefix, err.Error()), nil
	}
	if !reg.Registered() {
		detail := reg.Error
		if detail == "" {
			detail = reg.Payload
		}
		logger.WithField("registry_error", detail).Warn("schemas: registry rejected schema")
		return upstream(msgUploadFailurePrefix, detail), nil
	}

	updated, err := s.transition(ctx, scope, id, schemarequest.Transition{
		Status:   schemarequest.StatusApproved,
		Approver: p.Username,
	})
	if errors.Is(err, schemarequest.ErrNotPending) {
		logger.WithField("registry_id", reg.ID).Warn("schemas: request resolved concurrently after registry upload")
		return conflict(MsgRequestGone), nil
	}
	if err != nil {
		logger.WithError(err).Error("schemas: approve transition failed")
		return Result{}, gerrors.Wrap(err, "approve schema request")
	}

	logger.WithField("registry_id", reg.ID).Info("schemas: request approved")
	s.notify(ctx, logger, Notification{
		TenantID:  updated.TenantID,
		RequestID: updated.ID,
		Type:      events.SchemaRequestApproved,
		TopicName: updated.TopicName,
		Recipient: updated.Requestor,
	})
	return ok(updated.ID), nil
}

// DeclineRequest marks a CREATED request DECLINED with the approver's reason.
func (s *SchemaRequestService) DeclineRequest(ctx context.Context, p access.Principal, id int64, reason string) (res Result, err error) {
	const op = "DeclineRequest"
	ctx, span, logger := s.start(ctx, op, p, attribute.Int64("schemas.request_id", id))
	defer func() { finish(span, op, res, err) }()
	logger = logger.WithField("request_id", id)

	if res, allowed, err := s.authorize(ctx, p, access.ApproveSchemas); !allowed {
		return res, err
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}
	req, res, err := s.loadForDecision(ctx, scope, id)
	if req == nil {
		return res, err
	}
	if !scope.CanSee(req.EnvironmentID) {
		return denied(), nil
	}
	if req.Status.Terminal() {
		return conflict(MsgRequestGone), nil
	}
	if req.Requestor == p.Username {
		logger.WithField("self_decline", true).Warn("schemas: requestor is declining their own request")
	}

	updated, err := s.transition(ctx, scope, id, schemarequest.Transition{
		Status:        schemarequest.StatusDeclined,
		Approver:      p.Username,
		DeclineReason: reason,
	})
	if errors.Is(err, schemarequest.ErrNotPending) {
		return conflict(MsgRequestGone), nil
	}
	if err != nil {
		logger.WithError(err).Error("schemas: decline transition failed")
		return Result{}, gerrors.Wrap(err, "decline schema request")
	}

	logger.Info("schemas: request declined")
	s.notify(ctx, logger, Notification{
		TenantID:  updated.TenantID,
		RequestID: updated.ID,
		Type:      events.SchemaRequestDenied,
		TopicName: updated.TopicName,
		Reason:    reason,
		Recipient: updated.Requestor,
	})
	return ok(updated.ID), nil
}

// DeleteRequest removes the caller's own CREATED request. Ownership and status are enforced by the store.
func (s *SchemaRequestService) DeleteRequest(ctx context.Context, p access.Principal, id int64) (res Result, err error) {
	const op = "DeleteRequest"
	ctx, span, logger := s.start(ctx, op, p, attribute.Int64("schemas.request_id", id))
	defer func() { finish(span, op, res, err) }()

	if res, allowed, err := s.authorize(ctx, p, access.RequestDeleteSchemas); !allowed {
		return res, err
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}

	var removed bool
	err = inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		var err error
		removed, err = s.deps.Requests.Delete(txCtx, scope.TenantID, id, p.Username)
		return err
	})
	if err != nil {
		logger.WithError(err).Error("schemas: delete failed")
		return Result{}, gerrors.Wrap(err, "delete schema request")
	}
	if !removed {
		return notFound(), nil
	}
	logger.WithField("request_id", id).Info("schemas: request deleted")
	return ok(id), nil
}

type VersionView struct {
	Version int    `json:"version"`
	ID      int    `json:"id"`
	Schema  string `json:"schema"`
}

// ListSchemaVersions returns the registered versions of a topic's schema in a visible registry environment.
func (s *SchemaRequestService) ListSchemaVersions(ctx context.Context, p access.Principal, envID, topicName string) (res Result, err error) {
	const op = "ListSchemaVersions"
	ctx, span, logger := s.start(ctx, op, p, attribute.String("schemas.topic", topicName))
	defer func() { finish(span, op, res, err) }()

	if !p.Valid() {
		return denied(), nil
	}
	scope, err := s.resolve(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if scope == nil {
		return denied(), nil
	}
	env, err := s.sourceRegistry(ctx, scope, envID)
	if err != nil {
		return Result{}, err
	}
	if env == nil {
		return invalid(MsgSourceRegistry), nil
	}
	versions, err := s.deps.Registry.ListVersions(ctx, scope.TenantID, env.ID, topicName)
	if errors.Is(err, registry.ErrSubjectNotFound) {
		return ok([]VersionView{}), nil
	}
	if err != nil {
		logger.WithError(err).Warn("schemas: listing versions failed")
		return upstream(msgVersionsFailPrefix, err.Error()), nil
	}
	out := make([]VersionView, 0, len(versions))
	for _, v := range versions {
		out = append(out, VersionView{Version: v.Version, ID: v.ID, Schema: v.Schema})
	}
	return ok(out), nil
}
