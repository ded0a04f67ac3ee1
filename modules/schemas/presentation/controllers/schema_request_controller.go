package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/modules/schemas/access"
	"github.com/iota-uz/schemagov/modules/schemas/presentation/controllers/dtos"
	"github.com/iota-uz/schemagov/modules/schemas/services"
	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/composables"
	"github.com/iota-uz/schemagov/pkg/httpapi"
	"github.com/iota-uz/schemagov/pkg/middleware"
)

const maxBodyBytes = 1 << 20

type schemaEngine interface {
	Preflight(ctx context.Context, p access.Principal, perm access.Permission) (services.Result, error)
	SubmitSchemaRequest(ctx context.Context, p access.Principal, in services.SubmitInput) (services.Result, error)
	ValidateSchema(ctx context.Context, p access.Principal, in services.SubmitInput) (services.Result, error)
	PromoteSchema(ctx context.Context, p access.Principal, in services.PromotionInput) (services.Result, error)
	ListRequests(ctx context.Context, p access.Principal, params services.ListParams) (services.Result, error)
	GetRequest(ctx context.Context, p access.Principal, id int64) (services.Result, error)
	ApproveRequest(ctx context.Context, p access.Principal, id int64) (services.Result, error)
	DeclineRequest(ctx context.Context, p access.Principal, id int64, reason string) (services.Result, error)
	DeleteRequest(ctx context.Context, p access.Principal, id int64) (services.Result, error)
	ListSchemaVersions(ctx context.Context, p access.Principal, envID, topicName string) (services.Result, error)
}

type SchemaRequestController struct {
	engine          schemaEngine
	principalHeader string
	apiPrefix       string
}

func NewSchemaRequestController(app application.Application, principalHeader string) application.Controller {
	return newSchemaRequestController(
		app.Service(services.SchemaRequestService{}).(*services.SchemaRequestService),
		principalHeader,
	)
}

func newSchemaRequestController(engine schemaEngine, principalHeader string) *SchemaRequestController {
	return &SchemaRequestController{
		engine:          engine,
		principalHeader: principalHeader,
		apiPrefix:       "/schemas/api",
	}
}

func (c *SchemaRequestController) Key() string {
	return c.apiPrefix
}

func (c *SchemaRequestController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(
		middleware.WithPrincipal(c.principalHeader),
		requirePrincipal,
	)

	api.HandleFunc("/requests", c.Submit).Methods(http.MethodPost)
	api.HandleFunc("/requests", c.List).Methods(http.MethodGet)
	api.HandleFunc("/requests/validate", c.Validate).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id:[0-9]+}", c.Get).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id:[0-9]+}", c.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/requests/{id:[0-9]+}/approve", c.Approve).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id:[0-9]+}/decline", c.Decline).Methods(http.MethodPost)
	api.HandleFunc("/promotions", c.Promote).Methods(http.MethodPost)
	api.HandleFunc("/environments/{env}/topics/{topic}/versions", c.Versions).Methods(http.MethodGet)
}

func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := composables.UseUsername(r.Context()); err != nil {
			writeAPIError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(r *http.Request) access.Principal {
	username, _ := composables.UseUsername(r.Context())
	return access.Principal{Username: username}
}

func (c *SchemaRequestController) Submit(w http.ResponseWriter, r *http.Request) {
	if !c.permitted(w, r, access.RequestCreateSchemas) {
		return
	}
	var dto dtos.SubmitSchemaRequestDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body is invalid", errs)
		return
	}
	res, err := c.engine.SubmitSchemaRequest(r.Context(), principalFrom(r), dto.ToInput())
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Validate(w http.ResponseWriter, r *http.Request) {
	if !c.permitted(w, r, access.RequestCreateSchemas) {
		return
	}
	var dto dtos.SubmitSchemaRequestDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body is invalid", errs)
		return
	}
	res, err := c.engine.ValidateSchema(r.Context(), principalFrom(r), dto.ToInput())
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Promote(w http.ResponseWriter, r *http.Request) {
	if !c.permitted(w, r, access.RequestCreateSchemas) {
		return
	}
	var dto dtos.PromoteSchemaDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body is invalid", errs)
		return
	}
	res, err := c.engine.PromoteSchema(r.Context(), principalFrom(r), dto.ToInput())
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) List(w http.ResponseWriter, r *http.Request) {
	query, err := composables.UseQuery(&dtos.ListRequestsQuery{}, r)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_QUERY", "query string is invalid", nil)
		return
	}
	if errs, ok := query.Ok(); !ok {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_QUERY", "query string is invalid", errs)
		return
	}
	params, err := query.ToParams()
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	res, err := c.engine.ListRequests(r.Context(), principalFrom(r), params)
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	res, err := c.engine.GetRequest(r.Context(), principalFrom(r), id)
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	res, err := c.engine.ApproveRequest(r.Context(), principalFrom(r), id)
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Decline(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok || !c.permitted(w, r, access.ApproveSchemas) {
		return
	}
	var dto dtos.DeclineRequestDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body is invalid", errs)
		return
	}
	res, err := c.engine.DeclineRequest(r.Context(), principalFrom(r), id, dto.Reason)
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	res, err := c.engine.DeleteRequest(r.Context(), principalFrom(r), id)
	writeResult(w, r, res, err)
}

func (c *SchemaRequestController) Versions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := c.engine.ListSchemaVersions(r.Context(), principalFrom(r), vars["env"], vars["topic"])
	writeResult(w, r, res, err)
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_ID", "request id is invalid", nil)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "request body is not valid json"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeAPIError(w, r, http.StatusBadRequest, "INVALID_BODY", msg, nil)
		return false
	}
	return true
}

func statusFor(s services.ResultStatus) int {
	switch s {
	case services.ResultOK:
		return http.StatusOK
	case services.ResultDenied:
		return http.StatusForbidden
	case services.ResultInvalid:
		return http.StatusBadRequest
	case services.ResultConflict:
		return http.StatusConflict
	case services.ResultNotFound:
		return http.StatusNotFound
	case services.ResultUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// permitted answers with the uniform denial when the principal lacks perm.
func (c *SchemaRequestController) permitted(w http.ResponseWriter, r *http.Request, perm access.Permission) bool {
	res, err := c.engine.Preflight(r.Context(), principalFrom(r), perm)
	if err != nil || res.Status != "" {
		writeResult(w, r, res, err)
		return false
	}
	return true
}

func writeResult(w http.ResponseWriter, r *http.Request, res services.Result, err error) {
	if err != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("schemas: request failed")
		writeAPIError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status := statusFor(res.Status)
	if status != http.StatusOK {
		writeAPIError(w, r, status, strings.ToUpper(string(res.Status)), res.Message, nil)
		return
	}
	if werr := httpapi.WriteJSON(w, status, res); werr != nil {
		composables.UseLogger(r.Context()).WithError(werr).Warn("schemas: write response")
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	if id, ok := composables.UseRequestID(r.Context()); ok {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["request_id"] = id
	}
	if err := httpapi.WriteError(w, status, code, message, meta); err != nil {
		composables.UseLogger(r.Context()).WithFields(logrus.Fields{"status": status, "code": code}).
			WithError(err).Warn("schemas: write error response")
	}
}
