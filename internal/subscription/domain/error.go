package domain

import "errors"

var (
	ErrNotFound             = errors.New("subscription_not_found")
	ErrAlreadySubscribed    = errors.New("already_subscribed")
	ErrForbidden            = errors.New("forbidden")
	ErrSubscriptionRequired = errors.New("requires_subscription")
	ErrUserNotFound         = errors.New("user_not_found")
	ErrInvalidID            = errors.New("invalid_subscription_id")
	ErrInvalidStatus        = errors.New("invalid_status")
)
