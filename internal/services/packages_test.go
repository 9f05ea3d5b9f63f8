package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/metrics"
	"studio-backend/internal/models"
	"studio-backend/internal/storetest"
)

func newPackageFixture(t *testing.T, pkgs ...models.Package) (*PackageService, *storetest.Packages, *metrics.Metrics) {
	t.Helper()
	store := storetest.NewPackages(pkgs...)
	m := metrics.New(prometheus.NewRegistry())
	members := storetest.NewMembers()
	for _, p := range pkgs {
		members.Add(p.MemberID)
	}
	svc := NewPackageService(store, members, m, nil)
	svc.now = func() time.Time { return ledgerNow }
	return svc, store, m
}

func remaining(t *testing.T, store *storetest.Packages, id uuid.UUID) int {
	t.Helper()
	p, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.SessionsRemaining
}

func TestUsePackageSessionsInsufficient(t *testing.T) {
	pkg := activePackage(10, 2)
	svc, store, _ := newPackageFixture(t, pkg)

	_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 3})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, remaining(t, store, pkg.ID))
	assert.Empty(t, store.Usages())
}

func TestUsePackageSessionsExpired(t *testing.T) {
	pkg := activePackage(10, 10)
	pkg.EndDate = ledgerNow.Add(-24 * time.Hour)
	svc, store, _ := newPackageFixture(t, pkg)

	_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 1})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Package has expired", verr.Message)
	assert.Equal(t, 10, remaining(t, store, pkg.ID))
}

func TestUsePackageSessionsInactive(t *testing.T) {
	pkg := activePackage(10, 10)
	pkg.IsActive = false
	svc, _, _ := newPackageFixture(t, pkg)

	_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 1})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Package is inactive", verr.Message)
}

func TestUsePackageSessions(t *testing.T) {
	pkg := activePackage(10, 5)
	svc, store, m := newPackageFixture(t, pkg)
	notes := "two legs"

	updated, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 2, Notes: &notes})

	require.NoError(t, err)
	assert.Equal(t, 3, updated.SessionsRemaining)
	assert.Equal(t, 10, updated.TotalSessions)
	require.Len(t, store.Usages(), 1)
	assert.Equal(t, 2, store.Usages()[0].SessionsUsed)
	assert.Nil(t, store.Usages()[0].SessionID)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PackageSessionsUsed))
}

func TestUsePackageSessionsBounds(t *testing.T) {
	pkg := activePackage(50, 50)
	svc, store, _ := newPackageFixture(t, pkg)

	for _, n := range []int{0, -1, 11} {
		_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: n})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "n=%d", n)
		assert.Contains(t, verr.Fields, "sessions_to_use")
	}
	assert.Equal(t, 50, remaining(t, store, pkg.ID))
}

func TestUsePackageSessionsNotFound(t *testing.T) {
	svc, _, _ := newPackageFixture(t)

	_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: uuid.New(), SessionsToUse: 1})

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUsePackageSessionsLostRace(t *testing.T) {
	pkg := activePackage(10, 1)
	svc, store, _ := newPackageFixture(t, pkg)

	// Another request drains the package between the read and the debit.
	svc.packages = &drainingStore{Packages: store}

	_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 1})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, remaining(t, store, pkg.ID))
}

type drainingStore struct {
	*storetest.Packages
}

func (d *drainingStore) UseSessions(ctx context.Context, id uuid.UUID, n int, notes *string, now time.Time) (*models.Package, error) {
	p, err := d.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.SessionsRemaining = 0
	d.Put(*p)
	return d.Packages.UseSessions(ctx, id, n, notes, now)
}

func TestExtendPackage(t *testing.T) {
	pkg := activePackage(10, 1)
	svc, _, _ := newPackageFixture(t, pkg)
	newEnd := ledgerNow.AddDate(0, 6, 0)

	updated, err := svc.ExtendPackage(context.Background(), models.ExtendPackageRequest{
		PackageID: pkg.ID, AdditionalSessions: 5, NewEndDate: &newEnd,
	})

	require.NoError(t, err)
	assert.Equal(t, 15, updated.TotalSessions)
	assert.Equal(t, 6, updated.SessionsRemaining)
	assert.True(t, updated.EndDate.Equal(newEnd))

	used, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 6})
	require.NoError(t, err)
	assert.Equal(t, 0, used.SessionsRemaining)
}

func TestExtendRevivesExpiredPackage(t *testing.T) {
	pkg := activePackage(10, 4)
	pkg.EndDate = ledgerNow.Add(-time.Hour)
	svc, _, _ := newPackageFixture(t, pkg)
	newEnd := ledgerNow.AddDate(0, 1, 0)

	_, err := svc.ExtendPackage(context.Background(), models.ExtendPackageRequest{
		PackageID: pkg.ID, AdditionalSessions: 1, NewEndDate: &newEnd,
	})
	require.NoError(t, err)

	_, err = svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 1})
	assert.NoError(t, err)
}

func TestExtendPackageRejections(t *testing.T) {
	inactive := activePackage(10, 1)
	inactive.IsActive = false
	active := activePackage(10, 1)
	svc, _, _ := newPackageFixture(t, inactive, active)
	beforeStart := active.StartDate.Add(-time.Hour)

	var verr *ValidationError

	_, err := svc.ExtendPackage(context.Background(), models.ExtendPackageRequest{PackageID: active.ID, AdditionalSessions: 0})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "additional_sessions")

	_, err = svc.ExtendPackage(context.Background(), models.ExtendPackageRequest{PackageID: inactive.ID, AdditionalSessions: 1})
	require.ErrorAs(t, err, &verr)

	_, err = svc.ExtendPackage(context.Background(), models.ExtendPackageRequest{PackageID: active.ID, AdditionalSessions: 1, NewEndDate: &beforeStart})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "new_end_date")

	var nf *NotFoundError
	_, err = svc.ExtendPackage(context.Background(), models.ExtendPackageRequest{PackageID: uuid.New(), AdditionalSessions: 1})
	assert.ErrorAs(t, err, &nf)
}

func TestCreatePackage(t *testing.T) {
	svc, store, _ := newPackageFixture(t)
	memberID := uuid.New()
	svc.members = storetest.NewMembers(memberID)

	pkg, err := svc.Create(context.Background(), models.CreatePackageRequest{
		MemberID:      memberID,
		DeviceType:    " Vacu ",
		StartDate:     ledgerNow,
		EndDate:       ledgerNow.AddDate(0, 2, 0),
		TotalSessions: 12,
	})

	require.NoError(t, err)
	assert.Equal(t, "Vacu", pkg.DeviceType)
	assert.Equal(t, 12, pkg.SessionsRemaining)
	assert.True(t, pkg.IsActive)
	assert.Equal(t, 12, remaining(t, store, pkg.ID))
}

func TestCreatePackageValidation(t *testing.T) {
	svc, _, _ := newPackageFixture(t)

	_, err := svc.Create(context.Background(), models.CreatePackageRequest{
		StartDate: ledgerNow,
		EndDate:   ledgerNow.Add(-time.Hour),
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"member_id", "device_type", "total_sessions", "end_date"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestCreatePackageUnknownMember(t *testing.T) {
	svc, _, _ := newPackageFixture(t)

	_, err := svc.Create(context.Background(), models.CreatePackageRequest{
		MemberID: uuid.New(), DeviceType: "Vacu", StartDate: ledgerNow, EndDate: ledgerNow.AddDate(0, 1, 0), TotalSessions: 5,
	})

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestGetExpiringPackages(t *testing.T) {
	soon := activePackage(10, 3)
	soon.EndDate = ledgerNow.Add(48 * time.Hour)
	sooner := activePackage(10, 3)
	sooner.EndDate = ledgerNow.Add(2 * time.Hour)
	later := activePackage(10, 3)
	later.EndDate = ledgerNow.Add(30 * 24 * time.Hour)
	expired := activePackage(10, 3)
	expired.EndDate = ledgerNow.Add(-time.Hour)
	inactive := activePackage(10, 3)
	inactive.EndDate = ledgerNow.Add(time.Hour)
	inactive.IsActive = false

	svc, _, _ := newPackageFixture(t, soon, sooner, later, expired, inactive)

	pkgs, err := svc.GetExpiringPackages(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, sooner.ID, pkgs[0].ID)
	assert.Equal(t, soon.ID, pkgs[1].ID)
}

func TestDeactivatePackage(t *testing.T) {
	pkg := activePackage(10, 5)
	svc, _, _ := newPackageFixture(t, pkg)

	updated, err := svc.Deactivate(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 1})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPackageUsages(t *testing.T) {
	pkg := activePackage(10, 5)
	svc, _, _ := newPackageFixture(t, pkg)

	_, err := svc.UsePackageSessions(context.Background(), models.UsePackageRequest{PackageID: pkg.ID, SessionsToUse: 1})
	require.NoError(t, err)

	usages, err := svc.Usages(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Len(t, usages, 1)

	_, err = svc.Usages(context.Background(), uuid.New())
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
