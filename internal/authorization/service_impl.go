package authorization

import (
	"context"
	_ "embed"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/recurra/internal/config"
	"github.com/smallbiznis/recurra/internal/events"
	"github.com/smallbiznis/recurra/internal/sequencer"
	"github.com/smallbiznis/recurra/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const casbinRuleTable = "casbin_rule"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Enforcer  *casbin.SyncedEnforcer
	Sequencer *sequencer.Sequencer
	Outbox    *events.Outbox
}

type ServiceImpl struct {
	db        *gorm.DB
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
	sequencer *sequencer.Sequencer
	outbox    *events.Outbox
}

// NewEnforcer loads role memberships from the casbin_rule table. Auto-save
// is off: memberships are persisted inside the sequenced transaction that
// also records the outbox event, and the in-memory model follows.
func NewEnforcer(conn *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(conn)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(false)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) (Service, error) {
	s := &ServiceImpl{
		db:        p.DB,
		log:       p.Log.Named("authorization.service"),
		enforcer:  p.Enforcer,
		sequencer: p.Sequencer,
		outbox:    p.Outbox,
	}
	if err := s.bootstrap(p.Config); err != nil {
		return nil, err
	}
	return s, nil
}

// bootstrap grants admin to configured accounts and fee_collector to the
// configured fee collector. It is idempotent across restarts and across
// instances starting together.
func (s *ServiceImpl) bootstrap(cfg config.Config) error {
	grants := make([][2]string, 0, len(cfg.BootstrapAdmins)+1)
	for _, admin := range cfg.BootstrapAdmins {
		grants = append(grants, [2]string{admin, RoleAdmin})
	}
	if fc := strings.TrimSpace(cfg.FeeCollector); fc != "" {
		grants = append(grants, [2]string{fc, RoleFeeCollector})
	}
	for _, g := range grants {
		has, err := s.enforcer.HasGroupingPolicy(g[0], g[1])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		// Another instance may have granted the same row since LoadPolicy.
		if err := insertGrouping(s.db, g[0], g[1]); err != nil && !db.IsDuplicateKeyErr(err) {
			return err
		}
		if _, err := s.enforcer.AddGroupingPolicy(g[0], g[1]); err != nil {
			return err
		}
		s.log.Info("bootstrap role granted", zap.String("account", g[0]), zap.String("role", g[1]))
	}
	return nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, caller string, role string, owner string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ErrInvalidActor
	}
	if owner != "" && caller != owner {
		return ErrUnauthorized
	}
	if role == "" {
		return nil
	}
	allowed, err := s.HasRole(ctx, caller, role)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("capability denied", zap.String("caller", caller), zap.String("role", role))
		return ErrUnauthorized
	}
	return nil
}

func (s *ServiceImpl) HasRole(_ context.Context, account string, role string) (bool, error) {
	if !IsKnownRole(role) {
		return false, ErrInvalidRole
	}
	return s.enforcer.Enforce(strings.TrimSpace(account), role)
}

func (s *ServiceImpl) GrantRole(ctx context.Context, caller string, account string, role string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return ErrInvalidAccount
	}
	if !IsKnownRole(role) {
		return ErrInvalidRole
	}
	if err := s.Authorize(ctx, caller, RoleAdmin, ""); err != nil {
		return err
	}

	err := s.sequencer.Run(ctx, "authorization.grant_role", func(tx *gorm.DB) error {
		has, err := s.enforcer.HasGroupingPolicy(account, role)
		if err != nil || has {
			return err
		}
		if err := insertGrouping(tx, account, role); err != nil {
			return err
		}
		if err := s.outbox.PublishTx(ctx, tx, roleEvent(events.EventRoleGranted, caller, account, role)); err != nil {
			return err
		}
		_, err = s.enforcer.AddGroupingPolicy(account, role)
		return err
	})
	if err != nil {
		s.resync()
		return err
	}
	s.log.Info("role granted", zap.String("account", account), zap.String("role", role), zap.String("caller", caller))
	return nil
}

func (s *ServiceImpl) RevokeRole(ctx context.Context, caller string, account string, role string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return ErrInvalidAccount
	}
	if !IsKnownRole(role) {
		return ErrInvalidRole
	}
	if err := s.Authorize(ctx, caller, RoleAdmin, ""); err != nil {
		return err
	}

	err := s.sequencer.Run(ctx, "authorization.revoke_role", func(tx *gorm.DB) error {
		has, err := s.enforcer.HasGroupingPolicy(account, role)
		if err != nil || !has {
			return err
		}
		if err := tx.WithContext(ctx).Table(casbinRuleTable).
			Where("ptype = ? AND v0 = ? AND v1 = ?", "g", account, role).
			Delete(&gormadapter.CasbinRule{}).Error; err != nil {
			return err
		}
		if err := s.outbox.PublishTx(ctx, tx, roleEvent(events.EventRoleRevoked, caller, account, role)); err != nil {
			return err
		}
		_, err = s.enforcer.RemoveGroupingPolicy(account, role)
		return err
	})
	if err != nil {
		s.resync()
		return err
	}
	s.log.Info("role revoked", zap.String("account", account), zap.String("role", role), zap.String("caller", caller))
	return nil
}

func (s *ServiceImpl) ListRoles(_ context.Context, account string) ([]string, error) {
	roles, err := s.enforcer.GetRolesForUser(strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	sort.Strings(roles)
	return roles, nil
}

// resync reloads memberships after a rolled back change so memory never
// holds a grant the database does not.
func (s *ServiceImpl) resync() {
	if err := s.enforcer.LoadPolicy(); err != nil {
		s.log.Error("failed to reload role policy", zap.Error(err))
	}
}

func insertGrouping(conn *gorm.DB, account, role string) error {
	return conn.Table(casbinRuleTable).Create(&gormadapter.CasbinRule{
		Ptype: "g",
		V0:    account,
		V1:    role,
	}).Error
}

func roleEvent(eventType, caller, account, role string) events.Event {
	return events.Event{
		Type:          eventType,
		AggregateType: events.AggregateRole,
		AggregateID:   account,
		Payload: map[string]any{
			"account": account,
			"role":    role,
			"caller":  caller,
		},
	}
}
