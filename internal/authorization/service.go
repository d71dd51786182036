package authorization

import "context"

const (
	RoleAdmin        = "admin"
	RoleMerchant     = "merchant"
	RoleArbitrator   = "arbitrator"
	RoleOracle       = "oracle"
	RoleProvider     = "provider"
	RoleFeeCollector = "fee_collector"
)

var knownRoles = map[string]struct{}{
	RoleAdmin:        {},
	RoleMerchant:     {},
	RoleArbitrator:   {},
	RoleOracle:       {},
	RoleProvider:     {},
	RoleFeeCollector: {},
}

// IsKnownRole reports whether role is one of the engine roles.
func IsKnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

// Service is the single capability check used by every mutating operation.
type Service interface {
	// Authorize succeeds when caller equals owner (if owner is set) and
	// holds role (if role is set).
	Authorize(ctx context.Context, caller string, role string, owner string) error
	HasRole(ctx context.Context, account string, role string) (bool, error)
	GrantRole(ctx context.Context, caller string, account string, role string) error
	RevokeRole(ctx context.Context, caller string, account string, role string) error
	ListRoles(ctx context.Context, account string) ([]string, error)
}
