package domain

import "errors"

var (
	ErrProviderNotFound    = errors.New("payment_provider_not_found")
	ErrUpstreamUnavailable = errors.New("payment_provider_unavailable")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrMalformedEvent      = errors.New("malformed_event")
	ErrEventIgnored        = errors.New("event_ignored")
	ErrSessionNotFound     = errors.New("checkout_session_not_found")
	ErrCheckoutInProgress  = errors.New("checkout_in_progress")
	ErrRateLimited         = errors.New("rate_limited")
	ErrRetryable           = errors.New("reconciliation_retryable")
)
