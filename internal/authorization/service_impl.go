package authorization

import (
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/slipvault/slipvault/internal/slip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const ObjectSlip = "slip"

const (
	ActionSlipRead   = "slip.read"
	ActionSlipWrite  = "slip.write"
	ActionSlipDelete = "slip.delete"
)

// Service decides what an actor may do with a slip. The role→action table
// lives in the enforcer; the ownership floor, the accountant write bar and
// the company comparison are explicit here. The decision is pure: it reads
// nothing but its arguments and the static policy table.
type Service struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

func NewService(p Params) domain.Policy {
	return &Service{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Permissions maps (actor, record owner, record company snapshot) to the
// allowed action set. Ownership grants everything as a floor; same-company
// rights come from the role table; the accountant bar is applied last and
// overrides ownership.
func (s *Service) Permissions(actor domain.Actor, ownerID snowflake.ID, companyID *snowflake.ID) domain.Permissions {
	var perms domain.Permissions

	if actor.ID == ownerID {
		perms = domain.Permissions{CanRead: true, CanWrite: true, CanDelete: true}
	}

	if sameCompany(actor, companyID) {
		subject := roleSubject(actor.Role)
		perms.CanRead = perms.CanRead || s.allowed(subject, ActionSlipRead)
		perms.CanWrite = perms.CanWrite || s.allowed(subject, ActionSlipWrite)
		perms.CanDelete = perms.CanDelete || s.allowed(subject, ActionSlipDelete)
	}

	// Accountants are read-only on slips by role, even for records they
	// own.
	if actor.Role == domain.RoleAccountant {
		perms.CanWrite = false
		perms.CanDelete = false
	}

	return perms
}

// Visibility returns the scope used to build list and search queries:
// company-wide for accountants and admins that belong to a company, the
// actor's own records otherwise.
func (s *Service) Visibility(actor domain.Actor) domain.Scope {
	if actor.CompanyID == nil {
		return domain.ScopeSelf
	}
	switch actor.Role {
	case domain.RoleAccountant, domain.RoleCompanyAdmin, domain.RoleAdmin:
		return domain.ScopeCompany
	default:
		return domain.ScopeSelf
	}
}

func (s *Service) allowed(subject, action string) bool {
	ok, err := s.enforcer.Enforce(subject, ObjectSlip, action)
	if err != nil {
		s.log.Error("enforce failed", zap.String("subject", subject), zap.String("action", action), zap.Error(err))
		return false
	}
	return ok
}

func sameCompany(actor domain.Actor, companyID *snowflake.ID) bool {
	return actor.CompanyID != nil && companyID != nil && *actor.CompanyID == *companyID
}

func roleSubject(role domain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Accountant: company-wide read, never write.
		{"role:accountant", ObjectSlip, ActionSlipRead},

		// Company admins manage every slip in their company.
		{"role:company_admin", ObjectSlip, ActionSlipRead},
		{"role:company_admin", ObjectSlip, ActionSlipWrite},
		{"role:company_admin", ObjectSlip, ActionSlipDelete},

		{"role:admin", ObjectSlip, ActionSlipRead},
		{"role:admin", ObjectSlip, ActionSlipWrite},
		{"role:admin", ObjectSlip, ActionSlipDelete},

		// USER and CONTRIBUTOR carry no company-level rights: the
		// ownership floor is all they get.
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

// Module wires the policy service.
var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
