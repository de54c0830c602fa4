package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/slipvault/slipvault/internal/authorization"
	"github.com/slipvault/slipvault/internal/clock"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
	sliprepo "github.com/slipvault/slipvault/internal/slip/repository"
	slipservice "github.com/slipvault/slipvault/internal/slip/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&slipdomain.Slip{}, &slipdomain.Photo{}, &slipdomain.Tag{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) slipdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	enforcer, err := authorization.NewEnforcer()
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	policy := authorization.NewService(authorization.Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
	return slipservice.NewService(slipservice.ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:   sliprepo.Provide(node),
		Policy: policy,
	})
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func idPtr(id snowflake.ID) *snowflake.ID { return &id }

var actorIDs, _ = snowflake.NewNode(20)

func actor(role slipdomain.Role, company *snowflake.ID) slipdomain.Actor {
	return slipdomain.Actor{ID: actorIDs.Generate(), Role: role, CompanyID: company}
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := newService(t, setupTestDB(t))

	_, err := svc.Create(context.Background(), actor(slipdomain.RoleUser, nil), slipdomain.SlipInput{})
	assert.ErrorIs(t, err, slipdomain.ErrTitleRequired)
}

func TestCreateAccountantDenied(t *testing.T) {
	svc := newService(t, setupTestDB(t))

	_, err := svc.Create(context.Background(), actor(slipdomain.RoleAccountant, nil), slipdomain.SlipInput{
		Title: "Lunch",
	})
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)
}

func TestCreateFlagsDuplicateBySubstringPlace(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)
	date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	first, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen Cape Town"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("45.00"),
	})
	require.NoError(t, err)
	assert.Nil(t, first.Duplicate)

	// Candidate place is a substring of the stored place.
	second, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:          "Fuel again",
		Place:          strPtr("Engen"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("45.00"),
	})
	require.NoError(t, err)
	require.NotNil(t, second.Duplicate)
	assert.Equal(t, first.Slip.ID, second.Duplicate.ID)
	assert.Equal(t, "Fuel", second.Duplicate.Title)

	// The flag is advisory: the second slip was still saved.
	got, err := svc.Get(ctx, owner, second.Slip.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fuel again", got.Title)
}

func TestCreateDoesNotFlagDifferentAmount(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)
	date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen Cape Town"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("45.00"),
	})
	require.NoError(t, err)

	resp, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen Cape Town"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("46.00"),
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Duplicate)
}

func TestDuplicateScanIsScopedToOwner(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	company := snowflake.ID(77)
	alice := actor(slipdomain.RoleUser, idPtr(company))
	bob := actor(slipdomain.RoleUser, idPtr(company))
	date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, alice, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("45.00"),
	})
	require.NoError(t, err)

	// Another user's identical purchase must not be flagged.
	resp, err := svc.Create(ctx, bob, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("45.00"),
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Duplicate)
}

func TestCheckDuplicateRequiresAllThreeFields(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)
	date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen"),
		Date:           timePtr(date),
		AmountAfterTax: decPtr("45.00"),
	})
	require.NoError(t, err)

	match, err := svc.CheckDuplicate(ctx, owner, "Engen", timePtr(date), nil)
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = svc.CheckDuplicate(ctx, owner, "", timePtr(date), decPtr("45.00"))
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = svc.CheckDuplicate(ctx, owner, "Engen", nil, decPtr("45.00"))
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestUpdateReplacesTagSet(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)

	created, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title: "Lunch",
		Tags:  []string{"Food", "Travel"},
	})
	require.NoError(t, err)

	in := slipdomain.SlipInput{
		Title: "Lunch",
		Tags:  []string{"Food", "Office"},
	}
	updated, err := svc.Update(ctx, owner, created.Slip.ID, in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Food", "Office"}, tagNames(updated.Tags))

	// Replaying the same update leaves the tag set unchanged.
	again, err := svc.Update(ctx, owner, created.Slip.ID, in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Food", "Office"}, tagNames(again.Tags))

	cleared, err := svc.Update(ctx, owner, created.Slip.ID, slipdomain.SlipInput{Title: "Lunch"})
	require.NoError(t, err)
	assert.Empty(t, cleared.Tags)
}

func TestUpdateCreatesTagsUnderActingUser(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	company := snowflake.ID(42)
	owner := actor(slipdomain.RoleUser, idPtr(company))
	admin := actor(slipdomain.RoleCompanyAdmin, idPtr(company))

	created, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title: "Lunch",
		Tags:  []string{"Food"},
	})
	require.NoError(t, err)

	// An admin editing a member's slip connects-or-creates tags in the
	// admin's own namespace, not the slip owner's.
	updated, err := svc.Update(ctx, admin, created.Slip.ID, slipdomain.SlipInput{
		Title: "Lunch",
		Tags:  []string{"Food", "Audited"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Food", "Audited"}, tagNames(updated.Tags))

	var audited slipdomain.Tag
	require.NoError(t, db.First(&audited, "name = ?", "Audited").Error)
	assert.Equal(t, admin.ID, audited.UserID)

	// The owner's original tag is untouched; the admin got a fresh copy
	// of Food rather than reusing the owner's.
	var foods []slipdomain.Tag
	require.NoError(t, db.Find(&foods, "name = ?", "Food").Error)
	ownerIDs := make([]snowflake.ID, 0, len(foods))
	for _, tag := range foods {
		ownerIDs = append(ownerIDs, tag.UserID)
	}
	assert.ElementsMatch(t, []snowflake.ID{owner.ID, admin.ID}, ownerIDs)
}

func TestUpdateAuthorization(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	company := snowflake.ID(42)
	other := snowflake.ID(43)
	owner := actor(slipdomain.RoleUser, idPtr(company))

	created, err := svc.Create(ctx, owner, slipdomain.SlipInput{Title: "Lunch"})
	require.NoError(t, err)

	in := slipdomain.SlipInput{Title: "Team lunch"}

	_, err = svc.Update(ctx, actor(slipdomain.RoleContributor, idPtr(company)), created.Slip.ID, in)
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)

	_, err = svc.Update(ctx, actor(slipdomain.RoleAccountant, idPtr(company)), created.Slip.ID, in)
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)

	_, err = svc.Update(ctx, actor(slipdomain.RoleCompanyAdmin, idPtr(other)), created.Slip.ID, in)
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)

	updated, err := svc.Update(ctx, actor(slipdomain.RoleCompanyAdmin, idPtr(company)), created.Slip.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Team lunch", updated.Title)
}

func TestDeleteAuthorization(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	company := snowflake.ID(42)
	other := snowflake.ID(43)
	owner := actor(slipdomain.RoleUser, idPtr(company))

	created, err := svc.Create(ctx, owner, slipdomain.SlipInput{Title: "Lunch"})
	require.NoError(t, err)

	err = svc.Delete(ctx, actor(slipdomain.RoleAccountant, idPtr(company)), created.Slip.ID)
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)

	err = svc.Delete(ctx, actor(slipdomain.RoleCompanyAdmin, idPtr(other)), created.Slip.ID)
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)

	err = svc.Delete(ctx, actor(slipdomain.RoleCompanyAdmin, idPtr(company)), created.Slip.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, owner, created.Slip.ID)
	assert.ErrorIs(t, err, slipdomain.ErrNotFound)
}

func TestGetNotFound(t *testing.T) {
	svc := newService(t, setupTestDB(t))

	_, err := svc.Get(context.Background(), actor(slipdomain.RoleUser, nil), snowflake.ID(999))
	assert.ErrorIs(t, err, slipdomain.ErrNotFound)
}

func TestListScopesByRole(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	company := snowflake.ID(42)
	alice := actor(slipdomain.RoleUser, idPtr(company))
	bob := actor(slipdomain.RoleUser, idPtr(company))
	outsider := actor(slipdomain.RoleUser, nil)

	for _, a := range []slipdomain.Actor{alice, bob, outsider} {
		_, err := svc.Create(ctx, a, slipdomain.SlipInput{Title: "Lunch"})
		require.NoError(t, err)
	}

	// Plain users see only their own slips, even inside a company.
	own, err := svc.List(ctx, alice, slipdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, alice.ID, own[0].UserID)

	// An accountant of the company sees every company slip.
	all, err := svc.List(ctx, actor(slipdomain.RoleAccountant, idPtr(company)), slipdomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListFilters(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)

	_, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title: "Fuel",
		Place: strPtr("Engen"),
		Date:  timePtr(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
		Tags:  []string{"Transport"},
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner, slipdomain.SlipInput{
		Title: "Groceries",
		Place: strPtr("Checkers"),
		Date:  timePtr(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)),
		Tags:  []string{"Food"},
	})
	require.NoError(t, err)

	byText, err := svc.List(ctx, owner, slipdomain.ListRequest{Search: "engen"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "Fuel", byText[0].Title)

	byTag, err := svc.List(ctx, owner, slipdomain.ListRequest{Tag: "Food"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "Groceries", byTag[0].Title)

	byDate, err := svc.List(ctx, owner, slipdomain.ListRequest{
		DateFrom: timePtr(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "Groceries", byDate[0].Title)
}

func TestCompanySnapshotDoesNotFollowOwner(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	companyA := snowflake.ID(42)
	companyB := snowflake.ID(43)
	owner := actor(slipdomain.RoleUser, idPtr(companyA))

	created, err := svc.Create(ctx, owner, slipdomain.SlipInput{Title: "Lunch"})
	require.NoError(t, err)

	// The owner switches company: the slip keeps its original snapshot.
	moved := owner
	moved.CompanyID = idPtr(companyB)

	oldCompany, err := svc.List(ctx, actor(slipdomain.RoleAccountant, idPtr(companyA)), slipdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, oldCompany, 1)
	assert.Equal(t, created.Slip.ID, oldCompany[0].ID)

	newCompany, err := svc.List(ctx, actor(slipdomain.RoleAccountant, idPtr(companyB)), slipdomain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, newCompany)
}

func TestExportCSV(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)

	_, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:          "Fuel",
		Place:          strPtr("Engen"),
		Date:           timePtr(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
		AmountAfterTax: decPtr("45.00"),
		Currency:       strPtr("R"),
		Summary:        strPtr("Tank refill"),
		Tags:           []string{"Transport", "Work"},
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner, slipdomain.SlipInput{
		Title: "Groceries",
		Date:  timePtr(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, owner, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Title", "Place", "Amount", "Currency", "Tags", "Summary"}, rows[0])

	// Newest date first.
	assert.Equal(t, []string{"2024-02-20", "Groceries", "", "", "", "", ""}, rows[1])
	assert.Equal(t, []string{"2024-02-10", "Fuel", "Engen", "45.00", "R", "Transport;Work", "Tank refill"}, rows[2])
}

func TestTransferOwnership(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	company := snowflake.ID(42)
	member := actor(slipdomain.RoleUser, idPtr(company))
	admin := actor(slipdomain.RoleCompanyAdmin, idPtr(company))

	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, member, slipdomain.SlipInput{Title: "Lunch"})
		require.NoError(t, err)
	}

	err := svc.TransferOwnership(ctx, actor(slipdomain.RoleUser, idPtr(company)), member.ID)
	assert.ErrorIs(t, err, slipdomain.ErrUnauthorized)

	require.NoError(t, svc.TransferOwnership(ctx, admin, member.ID))

	gone, err := svc.List(ctx, member, slipdomain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, gone)

	claimed, err := svc.List(ctx, admin, slipdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, slip := range claimed {
		assert.Equal(t, admin.ID, slip.UserID)
	}
}

func TestCreateStoresPhoto(t *testing.T) {
	svc := newService(t, setupTestDB(t))
	ctx := context.Background()
	owner := actor(slipdomain.RoleUser, nil)

	created, err := svc.Create(ctx, owner, slipdomain.SlipInput{
		Title:    "Lunch",
		PhotoURL: strPtr("uploads/receipt-1.jpg"),
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, owner, created.Slip.ID)
	require.NoError(t, err)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, "uploads/receipt-1.jpg", got.Photos[0].URL)
}

func tagNames(tags []slipdomain.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}
