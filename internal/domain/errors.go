package domain

import "errors"

var (
	ErrNegativeRecordCount = errors.New("record count must not be negative")
	ErrMissingWebhookToken = errors.New("slack webhook token is not configured")
	ErrMissingAPIKey       = errors.New("sendgrid api key is not configured")
	ErrMissingAddress      = errors.New("email sender and recipient are required")
	ErrMissingStream       = errors.New("audit stream name is required")
)
