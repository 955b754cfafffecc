package report

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

type Action string

const (
	ActionCreate             Action = "create"
	ActionRead               Action = "read"
	ActionLookup             Action = "lookup"
	ActionEditBeforeTriage   Action = "editBeforeTriage"
	ActionTransitionStatus   Action = "transitionStatus"
	ActionReassignDepartment Action = "reassignDepartment"
)

// Authorizer answers whether an actor may perform an action on a report.
type Authorizer interface {
	CanPerform(actor Actor, action Action, r Report) bool
}

const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// Role-level grants. Row-level conditions (reporter match, department match, status) are
// applied in CanPerform on top of these.
var policyRules = []string{
	"p, anonymous, create",
	"p, anonymous, lookup",
	"p, citizen, create",
	"p, citizen, lookup",
	"p, citizen, editBeforeTriage",
	"p, staff, create",
	"p, staff, read",
	"p, staff, lookup",
	"p, staff, transitionStatus",
	"p, staff, reassignDepartment",
	"p, officer, create",
	"p, officer, read",
	"p, officer, lookup",
	"p, officer, transitionStatus",
}

type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

var _ Authorizer = (*Policy)(nil)

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy model: %w", err)
	}

	adapter := stringadapter.NewAdapter(strings.Join(policyRules, "\n"))
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy enforcer: %w", err)
	}

	return &Policy{enforcer: enforcer}, nil
}

func MustNewPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

// CanPerform never fails: anything not explicitly allowed, including enforcer errors, is false.
func (p *Policy) CanPerform(actor Actor, action Action, r Report) bool {
	if p == nil || p.enforcer == nil || !actor.Role.IsValid() {
		return false
	}

	granted, err := p.enforcer.Enforce(string(actor.Role), string(action))
	if err != nil || !granted {
		return false
	}

	switch action {
	case ActionEditBeforeTriage:
		ref := strings.TrimSpace(actor.Ref)
		return ref != "" && ref == r.ReporterRef && r.Status == StatusReceived && !triaged(r)
	case ActionTransitionStatus:
		if actor.Role == RoleOfficer {
			return sameDepartment(actor.Department, r.AssignedDepartment)
		}
		return true
	default:
		return true
	}
}

// triaged reports whether staff or an officer has already acted on the report. A reassignment
// leaves the status at received but still counts.
func triaged(r Report) bool {
	for _, h := range r.History {
		if h.Role.IsStaffLike() {
			return true
		}
	}
	return false
}
