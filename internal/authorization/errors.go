package authorization

import "errors"

var (
	ErrInvalidActor   = errors.New("invalid_actor")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrInvalidAccount = errors.New("invalid_account")
)
