package protocol

import "context"

// EmailMessage is the payload handed to the email-send collaborator.
type EmailMessage struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	HTML           string `json:"html"`
	IdempotencyKey string `json:"idempotency_key"`
}

// EmailSender delivers one email. Implementations must treat the idempotency
// key as a dedupe token: re-sending with the same key must not produce a
// second delivery. Failures are returned, never panicked, so the engine's
// retry policy can apply.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMSMessage is the payload handed to the SMS collaborator.
type SMSMessage struct {
	To             string `json:"to"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

// SMSSender delivers one text message with the same idempotency contract as
// EmailSender.
type SMSSender interface {
	Send(ctx context.Context, msg SMSMessage) error
}
