package entitlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/bher20/freightrates/internal/storage"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	// SubscriberRole is the role that unlocks live lookups. Role names live
	// under rolePrefix, which user ids may not use: casbin's role manager
	// treats g(x, x) as true, so a user named like a role would hold it.
	SubscriberRole = rolePrefix + "subscriber"

	rolePrefix = "role:"

	objectRates = "rates"
	actionLive  = "live"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Enforcer is a casbin RBAC Checker. Users granted SubscriberRole may perform
// "live" on "rates". Policy is persisted through storage.Storage.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policy from st and makes sure the subscriber permission
// exists.
func NewEnforcer(st storage.Storage) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewSyncedEnforcer(m, NewAdapter(st))
	if err != nil {
		return nil, fmt.Errorf("entitlement: load policy: %w", err)
	}

	if _, err := e.AddPolicy(SubscriberRole, objectRates, actionLive); err != nil {
		return nil, fmt.Errorf("entitlement: seed policy: %w", err)
	}

	return &Enforcer{enforcer: e}, nil
}

// ErrReservedUserID is returned when granting to an id in the role namespace.
var ErrReservedUserID = fmt.Errorf("entitlement: user ids may not start with %q", rolePrefix)

func isRoleName(userID string) bool {
	return strings.HasPrefix(userID, rolePrefix)
}

func (e *Enforcer) HasEntitlement(ctx context.Context, userID string) (bool, error) {
	if userID == "" || isRoleName(userID) {
		return false, nil
	}
	return e.enforcer.Enforce(userID, objectRates, actionLive)
}

// Grant gives userID the subscriber role.
func (e *Enforcer) Grant(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("entitlement: empty user id")
	}
	if isRoleName(userID) {
		return ErrReservedUserID
	}
	_, err := e.enforcer.AddGroupingPolicy(userID, SubscriberRole)
	return err
}

// Revoke removes the subscriber role from userID.
func (e *Enforcer) Revoke(ctx context.Context, userID string) error {
	_, err := e.enforcer.RemoveGroupingPolicy(userID, SubscriberRole)
	return err
}
