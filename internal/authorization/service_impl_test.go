package authorization_test

import (
	"context"
	"testing"

	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/events"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		caller string
		role   string
		owner  string
		want   error
	}{
		{name: "empty caller", caller: " ", want: authorization.ErrInvalidActor},
		{name: "any caller", caller: "bob"},
		{name: "owner matches", caller: "bob", owner: "bob"},
		{name: "owner mismatch", caller: "bob", owner: "alice", want: authorization.ErrUnauthorized},
		{name: "role held", caller: testutil.Merchant, role: authorization.RoleMerchant},
		{name: "role missing", caller: "bob", role: authorization.RoleArbitrator, want: authorization.ErrUnauthorized},
		{name: "role and owner", caller: testutil.Merchant, role: authorization.RoleMerchant, owner: testutil.Merchant},
		{name: "unknown role", caller: "bob", role: "wizard", want: authorization.ErrInvalidRole},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.Authz.Authorize(ctx, tc.caller, tc.role, tc.owner)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestBootstrapRoles(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	roles, err := h.Authz.ListRoles(ctx, testutil.Admin)
	require.NoError(t, err)
	assert.Equal(t, []string{authorization.RoleAdmin}, roles)

	ok, err := h.Authz.HasRole(ctx, testutil.FeeWallet, authorization.RoleFeeCollector)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second service over the same table does not duplicate grants.
	enforcer, err := authorization.NewEnforcer(h.DB)
	require.NoError(t, err)
	_, err = authorization.NewService(authorization.Params{
		DB:        h.DB,
		Log:       h.Log,
		Config:    h.Config,
		Enforcer:  enforcer,
		Sequencer: h.Sequencer,
		Outbox:    h.Outbox,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, h.DB.Table("casbin_rule").Where("v0 = ? AND v1 = ?", testutil.Admin, authorization.RoleAdmin).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBootstrapToleratesConcurrentGrant(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	enforcer, err := authorization.NewEnforcer(h.DB)
	require.NoError(t, err)

	// Written by another instance after this enforcer loaded its policy.
	require.NoError(t, h.DB.Table("casbin_rule").Create(&gormadapter.CasbinRule{
		Ptype: "g",
		V0:    "erin",
		V1:    authorization.RoleAdmin,
	}).Error)

	cfg := h.Config
	cfg.BootstrapAdmins = []string{"erin"}
	svc, err := authorization.NewService(authorization.Params{
		DB:        h.DB,
		Log:       h.Log,
		Config:    cfg,
		Enforcer:  enforcer,
		Sequencer: h.Sequencer,
		Outbox:    h.Outbox,
	})
	require.NoError(t, err)

	ok, err := svc.HasRole(ctx, "erin", authorization.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	var count int64
	require.NoError(t, h.DB.Table("casbin_rule").Where("v0 = ? AND v1 = ?", "erin", authorization.RoleAdmin).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGrantAndRevokeRole(t *testing.T) {
	h := testutil.New(t)
	ctx := context.Background()

	err := h.Authz.GrantRole(ctx, testutil.Merchant, "carol", authorization.RoleArbitrator)
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)

	err = h.Authz.GrantRole(ctx, testutil.Admin, "carol", "wizard")
	assert.ErrorIs(t, err, authorization.ErrInvalidRole)

	require.NoError(t, h.Authz.GrantRole(ctx, testutil.Admin, "carol", authorization.RoleArbitrator))
	require.NoError(t, h.Authz.GrantRole(ctx, testutil.Admin, "carol", authorization.RoleOracle))
	require.NoError(t, h.Authz.GrantRole(ctx, testutil.Admin, "carol", authorization.RoleOracle))

	roles, err := h.Authz.ListRoles(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{authorization.RoleArbitrator, authorization.RoleOracle}, roles)

	require.NoError(t, h.Authz.RevokeRole(ctx, testutil.Admin, "carol", authorization.RoleOracle))
	ok, err := h.Authz.HasRole(ctx, "carol", authorization.RoleOracle)
	require.NoError(t, err)
	assert.False(t, ok)

	// Memberships survive a reload from the database.
	require.NoError(t, h.Enforcer.LoadPolicy())
	ok, err = h.Authz.HasRole(ctx, "carol", authorization.RoleArbitrator)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t,
		[]string{events.EventRoleGranted, events.EventRoleGranted, events.EventRoleRevoked},
		h.OutboxTypes(t, events.AggregateRole, "carol"),
	)
}
