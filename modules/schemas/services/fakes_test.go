package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iota-uz/schemagov/modules/schemas/access"
	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/domain/environment"
	"github.com/iota-uz/schemagov/modules/schemas/domain/registry"
	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
	"github.com/iota-uz/schemagov/modules/schemas/domain/topic"
	"github.com/iota-uz/schemagov/pkg/composables"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeRequests struct {
	mu        sync.Mutex
	rows      map[int64]*schemarequest.SchemaRequest
	nextID    int64
	calls     []string
	createErr error
	updateErr error
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{rows: map[int64]*schemarequest.SchemaRequest{}}
}

func clone(r *schemarequest.SchemaRequest) *schemarequest.SchemaRequest {
	c := *r
	return &c
}

// seed stores r as is, bypassing the pending uniqueness rule.
func (f *fakeRequests) seed(r *schemarequest.SchemaRequest) *schemarequest.SchemaRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	if r.RequestTime.IsZero() {
		r.RequestTime = baseTime.Add(time.Duration(r.ID) * time.Minute)
	}
	if r.OperationType == 0 {
		r.OperationType = schemarequest.OperationCreate
	}
	f.rows[r.ID] = clone(r)
	return clone(r)
}

func (f *fakeRequests) get(id int64) *schemarequest.SchemaRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[id]; ok {
		return clone(r)
	}
	return nil
}

func (f *fakeRequests) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRequests) Create(ctx context.Context, req *schemarequest.SchemaRequest) (*schemarequest.SchemaRequest, error) {
	f.record("Create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	for _, r := range f.rows {
		if r.TenantID == req.TenantID && r.TopicName == req.TopicName && r.Status == schemarequest.StatusCreated {
			f.mu.Unlock()
			return nil, schemarequest.ErrPendingExists
		}
	}
	f.mu.Unlock()
	return f.seed(clone(req)), nil
}

func (f *fakeRequests) GetByID(ctx context.Context, tenantID int, id int64) (*schemarequest.SchemaRequest, error) {
	f.record("GetByID")
	r := f.get(id)
	if r == nil || r.TenantID != tenantID {
		return nil, schemarequest.ErrNotFound
	}
	return r, nil
}

func (f *fakeRequests) Search(ctx context.Context, p *schemarequest.FindParams) ([]*schemarequest.SchemaRequest, error) {
	f.record("Search")
	f.mu.Lock()
	defer f.mu.Unlock()
	var envs map[string]struct{}
	if p.EnvironmentIDs != nil {
		envs = access.NewEnvSet(p.EnvironmentIDs...)
	}
	var out []*schemarequest.SchemaRequest
	for id := int64(1); id <= f.nextID; id++ {
		r, ok := f.rows[id]
		switch {
		case !ok, r.TenantID != p.TenantID:
			continue
		case p.Status != nil && r.Status != *p.Status:
			continue
		case p.OperationType != nil && r.OperationType != *p.OperationType:
			continue
		case p.Topic != "" && r.TopicName != p.Topic:
			continue
		case p.EnvironmentID != "" && r.EnvironmentID != p.EnvironmentID:
			continue
		case p.Search != "" && !strings.Contains(strings.ToLower(r.TopicName), strings.ToLower(p.Search)):
			continue
		case p.ExcludeRequestor != "" && r.Requestor == p.ExcludeRequestor:
			continue
		case p.Requestor != "" && r.Requestor != p.Requestor:
			continue
		case p.TeamID != nil && r.TeamID != *p.TeamID:
			continue
		}
		if envs != nil {
			if _, ok := envs[r.EnvironmentID]; !ok {
				continue
			}
		}
		out = append(out, clone(r))
	}
	return out, nil
}

func (f *fakeRequests) UpdateStatus(ctx context.Context, tenantID int, id int64, t schemarequest.Transition) (*schemarequest.SchemaRequest, error) {
	f.record("UpdateStatus")
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.TenantID != tenantID || r.Status != schemarequest.StatusCreated {
		return nil, schemarequest.ErrNotPending
	}
	r.Status = t.Status
	r.Approver = t.Approver
	r.DeclineReason = t.DeclineReason
	if t.Status == schemarequest.StatusApproved {
		at := baseTime.Add(24 * time.Hour)
		r.ApprovedTime = &at
	}
	return clone(r), nil
}

func (f *fakeRequests) Delete(ctx context.Context, tenantID int, id int64, requestor string) (bool, error) {
	f.record("Delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.TenantID != tenantID || r.Requestor != requestor || r.Status != schemarequest.StatusCreated {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

type fakeEnvironments struct {
	envs []*environment.Environment
}

func (f *fakeEnvironments) GetByID(ctx context.Context, tenantID int, id string) (*environment.Environment, error) {
	for _, e := range f.envs {
		if e.ID == id && e.TenantID == tenantID {
			return e, nil
		}
	}
	return nil, environment.ErrNotFound
}

func (f *fakeEnvironments) ListByType(ctx context.Context, tenantID int, t environment.Type) ([]*environment.Environment, error) {
	var out []*environment.Environment
	for _, e := range f.envs {
		if e.TenantID == tenantID && e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEnvironments) Cluster(ctx context.Context, tenantID int, clusterID int) (*environment.Cluster, error) {
	return nil, environment.ErrNotFound
}

type fakeTopics struct {
	owners []topic.Ownership
}

func (f *fakeTopics) Owner(ctx context.Context, tenantID int, name string) (*topic.Ownership, error) {
	for i := range f.owners {
		if f.owners[i].TenantID == tenantID && f.owners[i].TopicName == name {
			o := f.owners[i]
			return &o, nil
		}
	}
	return nil, topic.ErrNotFound
}

type fakeDirectory struct {
	users []*directory.User
	teams []*directory.Team
	roles []string
}

func (f *fakeDirectory) UserByName(ctx context.Context, username string) (*directory.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, directory.ErrUserNotFound
}

func (f *fakeDirectory) TeamByID(ctx context.Context, tenantID, teamID int) (*directory.Team, error) {
	for _, t := range f.teams {
		if t.ID == teamID && t.TenantID == tenantID {
			return t, nil
		}
	}
	return nil, directory.ErrTeamNotFound
}

func (f *fakeDirectory) UsersByTeam(ctx context.Context, tenantID, teamID int) ([]*directory.User, error) {
	var out []*directory.User
	for _, u := range f.users {
		if u.TenantID == tenantID && u.TeamID == teamID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ApproverRoles(ctx context.Context, tenantID int) ([]string, error) {
	return f.roles, nil
}

type fakeRegistry struct {
	mu          sync.Mutex
	validate    registry.ValidationResult
	validateErr error
	register    registry.RegisterResult
	registerErr error
	versions    map[string][]registry.Version
	versionsErr error

	validateCalls int
	registerCalls int
	listCalls     int
}

func (f *fakeRegistry) Validate(ctx context.Context, tenantID int, envID, topicName, schema string) (registry.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	return f.validate, f.validateErr
}

func (f *fakeRegistry) Register(ctx context.Context, tenantID int, envID, topicName, schema string) (registry.RegisterResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	return f.register, f.registerErr
}

func (f *fakeRegistry) ListVersions(ctx context.Context, tenantID int, envID, topicName string) ([]registry.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.versionsErr != nil {
		return nil, f.versionsErr
	}
	v, ok := f.versions[envID+"/"+topicName]
	if !ok {
		return nil, registry.ErrSubjectNotFound
	}
	return v, nil
}

type fakeGate struct {
	grants map[string][]access.Permission
	calls  []access.Permission
}

func (f *fakeGate) IsAuthorized(ctx context.Context, p access.Principal, perm access.Permission) (bool, error) {
	f.calls = append(f.calls, perm)
	for _, g := range f.grants[p.Username] {
		if g == perm {
			return true, nil
		}
	}
	return false, nil
}

type fakeResolver struct {
	scopes map[string]*access.Scope
}

func (f *fakeResolver) Resolve(ctx context.Context, p access.Principal) (*access.Scope, error) {
	s, ok := f.scopes[p.Username]
	if !ok {
		return nil, ErrUnknownPrincipal
	}
	return s, nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (f *fakeSink) Send(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, string(n.Type))
	}
	return out
}

const (
	tenantA = 1
	tenantB = 2
	teamA   = 10
	teamB   = 20
)

var (
	alice = access.Principal{Username: "alice"}
	bob   = access.Principal{Username: "bob"}
	erin  = access.Principal{Username: "erin"}
	carol = access.Principal{Username: "carol"}
	dave  = access.Principal{Username: "dave"}
)

type harness struct {
	svc       *SchemaRequestService
	requests  *fakeRequests
	registry  *fakeRegistry
	gate      *fakeGate
	sink      *fakeSink
	directory *fakeDirectory
	// txResults holds what each transaction callback returned; non-nil means rollback.
	txResults []error
}

// newHarness builds an engine over two tenants. Tenant A has team payments (alice requests,
// bob and erin approve, dave audits). Tenant B has carol approving for team ledger.
func newHarness(t *testing.T) *harness {
	t.Helper()
	prev := inTenantTxFn
	h := &harness{}
	inTenantTxFn = func(ctx context.Context, tenantID int, fn func(context.Context) error) error {
		err := fn(composables.WithTenantID(ctx, tenantID))
		h.txResults = append(h.txResults, err)
		return err
	}
	t.Cleanup(func() { inTenantTxFn = prev })

	requestor := []access.Permission{access.RequestCreateSchemas, access.RequestDeleteSchemas}
	approver := append([]access.Permission{access.ApproveSchemas}, requestor...)

	*h = harness{
		requests: newFakeRequests(),
		registry: &fakeRegistry{
			validate: registry.ValidationResult{Valid: true, Message: "Schema is compatible"},
			register: registry.RegisterResult{Payload: `{"id":7}`, ID: "7"},
			versions: map[string][]registry.Version{},
		},
		gate: &fakeGate{grants: map[string][]access.Permission{
			"alice": requestor,
			"bob":   approver,
			"erin":  approver,
			"carol": approver,
		}},
		sink: &fakeSink{},
		directory: &fakeDirectory{
			users: []*directory.User{
				{Username: "alice", TenantID: tenantA, TeamID: teamA, Role: "requestor"},
				{Username: "bob", TenantID: tenantA, TeamID: teamA, Role: "approver"},
				{Username: "dave", TenantID: tenantA, TeamID: teamA, Role: "auditor"},
				{Username: "erin", TenantID: tenantA, TeamID: teamA, Role: "approver"},
				{Username: "carol", TenantID: tenantB, TeamID: teamB, Role: "approver"},
			},
			teams: []*directory.Team{
				{ID: teamA, TenantID: tenantA, Name: "payments", EnvironmentIDs: []string{"1", "2", "3"}},
				{ID: teamB, TenantID: tenantB, Name: "ledger", EnvironmentIDs: []string{"9"}},
			},
			roles: []string{"approver", "superadmin"},
		},
	}
	envs := &fakeEnvironments{envs: []*environment.Environment{
		{ID: "1", TenantID: tenantA, Name: "DEV_SR", Type: environment.TypeSchemaRegistry},
		{ID: "2", TenantID: tenantA, Name: "TST_SR", Type: environment.TypeSchemaRegistry},
		{ID: "3", TenantID: tenantA, Name: "DEV", Type: environment.TypeKafka},
		{ID: "4", TenantID: tenantA, Name: "PRD_SR", Type: environment.TypeSchemaRegistry},
		{ID: "9", TenantID: tenantB, Name: "PRD_SR", Type: environment.TypeSchemaRegistry},
	}}
	topics := &fakeTopics{owners: []topic.Ownership{
		{TenantID: tenantA, TopicName: "orders", TeamID: teamA},
		{TenantID: tenantA, TopicName: "invoices", TeamID: teamA},
		{TenantID: tenantA, TopicName: "billing", TeamID: 11},
		{TenantID: tenantB, TopicName: "orders", TeamID: teamB},
	}}
	resolver := NewDirectoryResolver(h.directory, nil)

	h.svc = NewSchemaRequestService(SchemaRequestDeps{
		Requests:     h.requests,
		Environments: envs,
		Topics:       topics,
		Directory:    h.directory,
		Registry:     h.registry,
		Gate:         h.gate,
		Resolver:     resolver,
		Sink:         h.sink,
	}, SchemaRequestServiceOptions{
		ValidateOnSave: true,
		LoginURL:       "https://schemas.example.test/login",
	})
	return h
}

const orderSchema = `{"type":"record","name":"Order","fields":[{"name":"id","type":"string"}]}`

func submitInput(topicName, env string) SubmitInput {
	return SubmitInput{TopicName: topicName, EnvironmentID: env, SchemaFull: orderSchema, Remarks: "first cut"}
}

// seedCreated stores a created request for team payments in env 1.
func (h *harness) seedCreated(topicName, requestor string) *schemarequest.SchemaRequest {
	return h.requests.seed(&schemarequest.SchemaRequest{
		TenantID:      tenantA,
		TeamID:        teamA,
		TopicName:     topicName,
		EnvironmentID: "1",
		SchemaFull:    orderSchema,
		Status:        schemarequest.StatusCreated,
		Requestor:     requestor,
	})
}

func topicN(i int) string {
	return fmt.Sprintf("topic-%02d", i)
}

var errBoom = errors.New("boom")
