package authorization

import (
	"context"
	"errors"
)

const (
	ObjectUsage        = "usage"
	ObjectSubscription = "subscription"
	ObjectVendorCall   = "vendor_call"
)

const (
	ActionUsageView          = "usage.view"
	ActionUsageReset         = "usage.reset"
	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionUpdate = "subscription.update"
	ActionVendorCallView     = "vendor_call.view"
)

const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
	RoleSystem  = "system"
)

// ActorSystem identifies operator tooling such as the CLI.
const ActorSystem = "system"

type Service interface {
	// Authorize checks that actor, holding role, may perform action on object.
	Authorize(ctx context.Context, actor, role, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// UserActor builds the casbin subject for a dashboard user.
func UserActor(userID string) string {
	return "user:" + userID
}
