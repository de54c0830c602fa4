package authorization

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/slipvault/slipvault/internal/slip/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPolicy(t *testing.T) domain.Policy {
	t.Helper()
	enforcer, err := NewEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func idPtr(id snowflake.ID) *snowflake.ID { return &id }

func TestPermissionsTable(t *testing.T) {
	policy := newPolicy(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	companyT := node.Generate()
	companyU := node.Generate()
	owner := node.Generate()
	other := node.Generate()

	tests := []struct {
		name      string
		actor     domain.Actor
		ownerID   snowflake.ID
		companyID *snowflake.ID
		want      domain.Permissions
	}{
		{
			name:      "owner has full rights on own record",
			actor:     domain.Actor{ID: owner, Role: domain.RoleUser},
			ownerID:   owner,
			companyID: nil,
			want:      domain.Permissions{CanRead: true, CanWrite: true, CanDelete: true},
		},
		{
			name:      "user cannot touch another user's record",
			actor:     domain.Actor{ID: other, Role: domain.RoleUser},
			ownerID:   owner,
			companyID: nil,
			want:      domain.Permissions{},
		},
		{
			name:      "contributor denied cross-user write in same company",
			actor:     domain.Actor{ID: other, Role: domain.RoleContributor, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: idPtr(companyT),
			want:      domain.Permissions{},
		},
		{
			name:      "company admin manages any same-company record",
			actor:     domain.Actor{ID: other, Role: domain.RoleCompanyAdmin, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: idPtr(companyT),
			want:      domain.Permissions{CanRead: true, CanWrite: true, CanDelete: true},
		},
		{
			name:      "company admin denied outside their company",
			actor:     domain.Actor{ID: other, Role: domain.RoleCompanyAdmin, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: idPtr(companyU),
			want:      domain.Permissions{},
		},
		{
			name:      "admin manages any same-company record",
			actor:     domain.Actor{ID: other, Role: domain.RoleAdmin, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: idPtr(companyT),
			want:      domain.Permissions{CanRead: true, CanWrite: true, CanDelete: true},
		},
		{
			name:      "accountant reads company-wide but never writes",
			actor:     domain.Actor{ID: other, Role: domain.RoleAccountant, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: idPtr(companyT),
			want:      domain.Permissions{CanRead: true},
		},
		{
			name:      "accountant denied write and delete on their own record",
			actor:     domain.Actor{ID: owner, Role: domain.RoleAccountant, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: idPtr(companyT),
			want:      domain.Permissions{CanRead: true},
		},
		{
			name:      "accountant without company still read-only on own record",
			actor:     domain.Actor{ID: owner, Role: domain.RoleAccountant},
			ownerID:   owner,
			companyID: nil,
			want:      domain.Permissions{CanRead: true},
		},
		{
			name:      "nil company on record never matches company rights",
			actor:     domain.Actor{ID: other, Role: domain.RoleCompanyAdmin, CompanyID: idPtr(companyT)},
			ownerID:   owner,
			companyID: nil,
			want:      domain.Permissions{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Permissions(tt.actor, tt.ownerID, tt.companyID)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVisibility(t *testing.T) {
	policy := newPolicy(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	company := node.Generate()
	user := node.Generate()

	assert.Equal(t, domain.ScopeSelf, policy.Visibility(domain.Actor{ID: user, Role: domain.RoleUser}))
	assert.Equal(t, domain.ScopeSelf, policy.Visibility(domain.Actor{ID: user, Role: domain.RoleContributor, CompanyID: idPtr(company)}))
	assert.Equal(t, domain.ScopeSelf, policy.Visibility(domain.Actor{ID: user, Role: domain.RoleCompanyAdmin}))
	assert.Equal(t, domain.ScopeCompany, policy.Visibility(domain.Actor{ID: user, Role: domain.RoleAccountant, CompanyID: idPtr(company)}))
	assert.Equal(t, domain.ScopeCompany, policy.Visibility(domain.Actor{ID: user, Role: domain.RoleCompanyAdmin, CompanyID: idPtr(company)}))
	assert.Equal(t, domain.ScopeCompany, policy.Visibility(domain.Actor{ID: user, Role: domain.RoleAdmin, CompanyID: idPtr(company)}))
}
