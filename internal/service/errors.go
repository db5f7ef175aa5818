package service

import "errors"

// Common service errors.
var (
	// ErrMissingCorrelation is returned when a webhook callback lacks a
	// required correlation identifier.
	ErrMissingCorrelation = errors.New("missing correlation identifier")

	// ErrUnknownWebhookStatus is returned for callback statuses other
	// than completed or error.
	ErrUnknownWebhookStatus = errors.New("unknown webhook status")
)
