package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/schemagov/modules/schemas/access"
	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/domain/environment"
	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
)

const (
	PageSize = 10

	OrderAscRequestedTime  = "ASC_REQUESTED_TIME"
	OrderDescRequestedTime = "DESC_REQUESTED_TIME"
)

type ListParams struct {
	Status         *schemarequest.Status
	OperationType  *schemarequest.OperationType
	Topic          string
	Environment    string
	Search         string
	Order          string
	ApprovalView   bool
	MyRequestsOnly bool
	// PageNo is a page number or one of the navigation tokens >, >>, < and <<.
	PageNo      string
	CurrentPage string
}

type RequestView struct {
	ID                   int64      `json:"req_id"`
	TopicName            string     `json:"topic_name"`
	EnvironmentID        string     `json:"environment"`
	EnvironmentName      string     `json:"environment_name"`
	SchemaVersion        *int       `json:"schema_version"`
	SchemaFull           string     `json:"schema_full"`
	Remarks              string     `json:"remarks"`
	ForceRegister        bool       `json:"force_register"`
	OperationType        string     `json:"operation_type"`
	Status               string     `json:"request_status"`
	Requestor            string     `json:"requestor"`
	Approver             string     `json:"approver"`
	TeamID               int        `json:"team_id"`
	TeamName             string     `json:"team_name"`
	ApprovingTeamDetails string     `json:"approving_team_details,omitempty"`
	DeclineReason        string     `json:"decline_reason,omitempty"`
	RequestTime          time.Time  `json:"request_time"`
	ApprovedTime         *time.Time `json:"approved_time"`
	Deletable            bool       `json:"deletable"`
	Editable             bool       `json:"editable"`

	AllPageNos   []string `json:"all_page_nos,omitempty"`
	TotalNoPages int      `json:"total_no_pages,omitempty"`
	CurrentPage  int      `json:"current_page,omitempty"`
}

// ListRequests returns one page of the requests visible to the caller.
func (s *SchemaRequestService) ListRequests(ctx context.Context, p access.Principal, params ListParams) (res Result, err error) {
	const op = "ListRequests"
	ctx, span, logger := s.start(ctx, op, p,
		attribute.Bool("schemas.approval_view", params.ApprovalView),
		attribute.String("schemas.page_no", params.PageNo),
	)
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

	find := &schemarequest.FindParams{
		TenantID:       scope.TenantID,
		Status:         params.Status,
		OperationType:  params.OperationType,
		Topic:          params.Topic,
		EnvironmentID:  params.Environment,
		Search:         params.Search,
		EnvironmentIDs: scope.EnvIDs(),
	}
	if params.ApprovalView {
		find.ExcludeRequestor = p.Username
	} else {
		teamID := scope.TeamID
		find.TeamID = &teamID
	}
	if params.MyRequestsOnly {
		find.Requestor = p.Username
	}

	var views []*RequestView
	err = inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		found, err := s.deps.Requests.Search(txCtx, find)
		if err != nil {
			return gerrors.Wrap(err, "search schema requests")
		}
		b := newViewBuilder(s.deps, scope, p)
		for _, r := range found {
			if r.TenantID != scope.TenantID || !scope.CanSee(r.EnvironmentID) {
				continue
			}
			v, err := b.build(txCtx, r)
			if err != nil {
				return err
			}
			views = append(views, v)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("schemas: list failed")
		return Result{}, err
	}

	sortViews(views, params.Order)
	return ok(paginate(views, params.PageNo, params.CurrentPage)), nil
}

// GetRequest returns a single request when its environment is visible to the caller.
func (s *SchemaRequestService) GetRequest(ctx context.Context, p access.Principal, id int64) (res Result, err error) {
	const op = "GetRequest"
	ctx, span, _ := s.start(ctx, op, p, attribute.Int64("schemas.request_id", id))
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

	var view *RequestView
	err = inTenantTxFn(ctx, scope.TenantID, func(txCtx context.Context) error {
		req, err := s.deps.Requests.GetByID(txCtx, scope.TenantID, id)
		if errors.Is(err, schemarequest.ErrNotFound) {
			res = notFound()
			return nil
		}
		if err != nil {
			return gerrors.Wrap(err, "load schema request")
		}
		if req.TenantID != scope.TenantID {
			res = notFound()
			return nil
		}
		if !scope.CanSee(req.EnvironmentID) {
			res = denied()
			return nil
		}
		view, err = newViewBuilder(s.deps, scope, p).build(txCtx, req)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if view == nil {
		return res, nil
	}
	return ok(view), nil
}

// viewBuilder memoizes directory lookups across the rows of one listing.
type viewBuilder struct {
	deps      SchemaRequestDeps
	scope     *access.Scope
	viewer    string
	envNames  map[string]string
	teams     map[int]*directory.Team
	approvers map[int][]string
	roles     map[string]struct{}
}

func newViewBuilder(deps SchemaRequestDeps, scope *access.Scope, p access.Principal) *viewBuilder {
	return &viewBuilder{
		deps:      deps,
		scope:     scope,
		viewer:    p.Username,
		envNames:  map[string]string{},
		teams:     map[int]*directory.Team{},
		approvers: map[int][]string{},
	}
}

func (b *viewBuilder) build(ctx context.Context, r *schemarequest.SchemaRequest) (*RequestView, error) {
	envName, err := b.envName(ctx, r.EnvironmentID)
	if err != nil {
		return nil, err
	}
	team, err := b.team(ctx, r.TeamID)
	if err != nil {
		return nil, err
	}
	own := r.Status == schemarequest.StatusCreated && r.Requestor == b.viewer
	v := &RequestView{
		ID:              r.ID,
		TopicName:       r.TopicName,
		EnvironmentID:   r.EnvironmentID,
		EnvironmentName: envName,
		SchemaVersion:   r.SchemaVersion,
		SchemaFull:      r.SchemaFull,
		Remarks:         r.Remarks,
		ForceRegister:   r.ForceRegister,
		OperationType:   strings.ToUpper(r.OperationType.String()),
		Status:          strings.ToUpper(r.Status.String()),
		Requestor:       r.Requestor,
		Approver:        r.Approver,
		TeamID:          r.TeamID,
		TeamName:        team.Name,
		DeclineReason:   r.DeclineReason,
		RequestTime:     r.RequestTime,
		ApprovedTime:    r.ApprovedTime,
		Deletable:       own,
		Editable:        own,
	}
	if r.Status != schemarequest.StatusApproved {
		users, err := b.approverUsers(ctx, r.TeamID)
		if err != nil {
			return nil, err
		}
		v.ApprovingTeamDetails = approvingTeamDetails(team.Name, users, r.Requestor)
	}
	return v, nil
}

func (b *viewBuilder) envName(ctx context.Context, id string) (string, error) {
	if name, ok := b.envNames[id]; ok {
		return name, nil
	}
	env, err := b.deps.Environments.GetByID(ctx, b.scope.TenantID, id)
	if errors.Is(err, environment.ErrNotFound) {
		b.envNames[id] = ""
		return "", nil
	}
	if err != nil {
		return "", gerrors.Wrap(err, "environment")
	}
	b.envNames[id] = env.Name
	return env.Name, nil
}

func (b *viewBuilder) team(ctx context.Context, id int) (*directory.Team, error) {
	if t, ok := b.teams[id]; ok {
		return t, nil
	}
	t, err := b.deps.Directory.TeamByID(ctx, b.scope.TenantID, id)
	if errors.Is(err, directory.ErrTeamNotFound) {
		t = &directory.Team{ID: id, TenantID: b.scope.TenantID}
	} else if err != nil {
		return nil, gerrors.Wrap(err, "team")
	}
	b.teams[id] = t
	return t, nil
}

// approverUsers lists users of the team holding an approver role, in directory order.
func (b *viewBuilder) approverUsers(ctx context.Context, teamID int) ([]string, error) {
	if names, ok := b.approvers[teamID]; ok {
		return names, nil
	}
	if b.roles == nil {
		roles, err := b.deps.Directory.ApproverRoles(ctx, b.scope.TenantID)
		if err != nil {
			return nil, gerrors.Wrap(err, "approver roles")
		}
		b.roles = make(map[string]struct{}, len(roles))
		for _, r := range roles {
			b.roles[r] = struct{}{}
		}
	}
	users, err := b.deps.Directory.UsersByTeam(ctx, b.scope.TenantID, teamID)
	if err != nil {
		return nil, gerrors.Wrap(err, "team users")
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := b.roles[u.Role]; ok {
			names = append(names, u.Username)
		}
	}
	b.approvers[teamID] = names
	return names, nil
}

// approvingTeamDetails renders "Team : <team>, Users : a,b," skipping the requestor.
func approvingTeamDetails(teamName string, users []string, requestor string) string {
	var sb strings.Builder
	sb.WriteString("Team : ")
	sb.WriteString(teamName)
	sb.WriteString(", Users : ")
	for _, u := range users {
		if u == requestor {
			continue
		}
		sb.WriteString(u)
		sb.WriteString(",")
	}
	return sb.String()
}

func sortViews(views []*RequestView, order string) {
	asc := order == OrderAscRequestedTime
	sort.SliceStable(views, func(i, j int) bool {
		if asc {
			return views[i].RequestTime.Before(views[j].RequestTime)
		}
		return views[i].RequestTime.After(views[j].RequestTime)
	})
}

// paginate returns the requested page of views and stamps the paging fields on each of them.
func paginate(views []*RequestView, pageNo, currentPage string) []*RequestView {
	if len(views) == 0 {
		return []*RequestView{}
	}
	total := int(math.Ceil(float64(len(views)) / PageSize))
	page := resolvePage(pageNo, currentPage, total)
	pageNos := pageLinks(page, total)

	from := (page - 1) * PageSize
	to := min(from+PageSize, len(views))
	out := views[from:to]
	for _, v := range out {
		v.AllPageNos = pageNos
		v.TotalNoPages = total
		v.CurrentPage = page
	}
	return out
}

// resolvePage turns a page number or navigation token into a page in [1, total].
func resolvePage(pageNo, currentPage string, total int) int {
	current, err := strconv.Atoi(strings.TrimSpace(currentPage))
	if err != nil || current < 1 {
		current = 1
	}

	var page int
	switch strings.TrimSpace(pageNo) {
	case ">":
		page = current + 1
	case ">>":
		page = total
	case "<":
		page = current - 1
	case "<<":
		page = 1
	default:
		page, err = strconv.Atoi(strings.TrimSpace(pageNo))
		if err != nil {
			page = 1
		}
	}

	switch {
	case page < 1:
		return 1
	case page > total:
		return total
	default:
		return page
	}
}

func pageLinks(page, total int) []string {
	var links []string
	if page > 1 {
		links = append(links, "<<", "<")
	}
	links = append(links, strconv.Itoa(page))
	if page < total {
		links = append(links, ">", ">>")
	}
	return links
}
