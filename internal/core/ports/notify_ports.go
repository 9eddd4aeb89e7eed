package ports

import "context"

type TemplateKind string

const (
	TemplateVerificationCode TemplateKind = "verification-code"
	TemplateVoteConfirmation TemplateKind = "vote-confirmation"
)

type Notifier interface {
	Send(ctx context.Context, destination string, kind TemplateKind, params map[string]string) error
}
