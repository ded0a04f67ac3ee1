// Package registry implements the schema registry adapter against the Confluent-compatible REST API.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/modules/schemas/domain/environment"
	"github.com/iota-uz/schemagov/modules/schemas/domain/registry"
	"github.com/iota-uz/schemagov/pkg/composables"
)

const (
	contentType = "application/vnd.schemaregistry.v1+json"

	MsgCompatible    = "Schema is compatible"
	MsgNotCompatible = "Schema is not compatible"

	// Confluent error code for an unknown subject.
	codeSubjectNotFound = 40401
	maxErrorBody        = 512
)

var inTenantTxFn = composables.InTenantTx

type Client struct {
	envs       environment.Repository
	http       *http.Client
	retries    int
	retryDelay time.Duration
}

func NewClient(envs environment.Repository, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		envs: envs,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries:    1,
		retryDelay: 200 * time.Millisecond,
	}
}

var _ registry.Adapter = (*Client)(nil)

type schemaBody struct {
	Schema string `json:"schema"`
}

type errorBody struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

type compatibilityBody struct {
	IsCompatible bool     `json:"is_compatible"`
	Messages     []string `json:"messages"`
}

type versionBody struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
	ID      int    `json:"id"`
	Schema  string `json:"schema"`
}

func (c *Client) Validate(ctx context.Context, tenantID int, envID, topic, schema string) (registry.ValidationResult, error) {
	base, err := c.baseURL(ctx, tenantID, envID)
	if err != nil {
		return registry.ValidationResult{}, err
	}
	status, body, err := c.do(ctx, "validate", http.MethodPost,
		base+"/compatibility/subjects/"+subject(topic)+"/versions/latest", schemaBody{Schema: schema})
	if err != nil {
		return registry.ValidationResult{}, err
	}

	switch {
	case status == http.StatusOK:
		var out compatibilityBody
		if err := json.Unmarshal(body, &out); err != nil {
			return registry.ValidationResult{}, gerrors.Wrap(err, "decode compatibility response")
		}
		if !out.IsCompatible {
			return registry.ValidationResult{Valid: false, Message: MsgNotCompatible}, nil
		}
		return registry.ValidationResult{Valid: true, Message: MsgCompatible}, nil
	case status == http.StatusNotFound:
		// first version of a subject is always compatible
		return registry.ValidationResult{Valid: true, Message: MsgCompatible}, nil
	case status == http.StatusUnprocessableEntity:
		return registry.ValidationResult{Valid: false, Message: errorMessage(body)}, nil
	default:
		return registry.ValidationResult{}, statusError(status, body)
	}
}

// Register uploads schema as the next version of the topic's value subject. Rejections by the
// registry are reported in the result, not as an error.
func (c *Client) Register(ctx context.Context, tenantID int, envID, topic, schema string) (registry.RegisterResult, error) {
	base, err := c.baseURL(ctx, tenantID, envID)
	if err != nil {
		return registry.RegisterResult{}, err
	}
	status, body, err := c.do(ctx, "register", http.MethodPost,
		base+"/subjects/"+subject(topic)+"/versions", schemaBody{Schema: schema})
	if err != nil {
		return registry.RegisterResult{}, err
	}

	res := registry.RegisterResult{Payload: string(body)}
	if status/100 != 2 {
		res.Error = errorMessage(body)
		return res, nil
	}
	var out struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err == nil && out.ID > 0 {
		res.ID = strconv.Itoa(out.ID)
	}
	return res, nil
}

func (c *Client) ListVersions(ctx context.Context, tenantID int, envID, topic string) ([]registry.Version, error) {
	base, err := c.baseURL(ctx, tenantID, envID)
	if err != nil {
		return nil, err
	}
	prefix := base + "/subjects/" + subject(topic) + "/versions"

	status, body, err := c.do(ctx, "list_versions", http.MethodGet, prefix, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, registry.ErrSubjectNotFound
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}
	var numbers []int
	if err := json.Unmarshal(body, &numbers); err != nil {
		return nil, gerrors.Wrap(err, "decode version list")
	}
	sort.Ints(numbers)

	out := make([]registry.Version, 0, len(numbers))
	for i, n := range numbers {
		if i > 0 && numbers[i-1] == n {
			continue
		}
		status, body, err := c.do(ctx, "get_version", http.MethodGet, prefix+"/"+strconv.Itoa(n), nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, statusError(status, body)
		}
		var v versionBody
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, gerrors.Wrapf(err, "decode version %d", n)
		}
		out = append(out, registry.Version{Version: v.Version, ID: v.ID, Schema: v.Schema})
	}
	return out, nil
}

func (c *Client) baseURL(ctx context.Context, tenantID int, envID string) (string, error) {
	var cluster *environment.Cluster
	err := inTenantTxFn(ctx, tenantID, func(txCtx context.Context) error {
		env, err := c.envs.GetByID(txCtx, tenantID, envID)
		if err != nil {
			return err
		}
		if env.Type != environment.TypeSchemaRegistry {
			return gerrors.Errorf("environment %s is not a schema registry", envID)
		}
		cluster, err = c.envs.Cluster(txCtx, tenantID, env.ClusterID)
		return err
	})
	if err != nil {
		return "", gerrors.Wrapf(err, "resolve registry for environment %s", envID)
	}
	return endpointURL(cluster), nil
}

func endpointURL(cluster *environment.Cluster) string {
	endpoint := strings.TrimRight(strings.TrimSpace(cluster.Endpoint), "/")
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	protocol := strings.ToLower(strings.TrimSpace(cluster.Protocol))
	if protocol == "" {
		protocol = "http"
	}
	return protocol + "://" + endpoint
}

func subject(topic string) string {
	return url.PathEscape(topic + "-value")
}

// retryable reports whether op may be sent again after a transport failure or a 5xx answer.
// Only reads and the compatibility check qualify; registration is sent once.
func retryable(op, method string) bool {
	return method == http.MethodGet || op == "validate"
}

// do sends one request, retrying transport failures and 5xx answers for retryable calls.
func (c *Client) do(ctx context.Context, op, method, target string, payload any) (int, []byte, error) {
	var raw []byte
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return 0, nil, gerrors.Wrap(err, "encode registry request")
		}
	}
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "schemas.registry",
		"operation": op,
	})

	retries := c.retries
	if !retryable(op, method) {
		retries = 0
	}

	started := time.Now()
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(raw))
		if err != nil {
			return 0, nil, gerrors.Wrap(err, "build registry request")
		}
		req.Header.Set("Accept", contentType)
		if raw != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < retries {
			lastErr = statusError(resp.StatusCode, body)
			continue
		}
		observeCall(op, resp.StatusCode, time.Since(started))
		logger.WithField("status", resp.StatusCode).Debug("schemas: registry call")
		return resp.StatusCode, body, nil
	}
	observeCall(op, 0, time.Since(started))
	return 0, nil, gerrors.Wrapf(lastErr, "registry %s", op)
}

func errorMessage(body []byte) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return truncate(string(body))
}

func statusError(status int, body []byte) error {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil && e.ErrorCode == codeSubjectNotFound {
		return registry.ErrSubjectNotFound
	}
	return fmt.Errorf("registry returned %d: %s", status, errorMessage(body))
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody]
}
