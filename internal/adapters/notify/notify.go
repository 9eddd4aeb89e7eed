// Package notify holds Notifier adapters. The network transport is an
// external collaborator; LogSender renders the message and writes it to the
// structured log so development setups can read codes from the output.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[ports.TemplateKind]message{
	ports.TemplateVerificationCode: {
		subject: template.Must(template.New("subject").Parse(`Your verification code for {{.election}}`)),
		body: template.Must(template.New("body").Parse(
			`Hello {{.name}}, your code is {{.code}}. It expires in {{.expires_in}}.`)),
	},
	ports.TemplateVoteConfirmation: {
		subject: template.Must(template.New("subject").Parse(`Vote recorded for {{.election}}`)),
		body: template.Must(template.New("body").Parse(
			`Hello {{.name}}, your vote for {{.option}} in {{.election}} has been recorded.`)),
	},
}

// Render returns the subject and body for kind.
func Render(kind ports.TemplateKind, params map[string]string) (string, string, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", kind)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, params); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, params); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

type LogSender struct {
	log *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{log: logger}
}

func (s *LogSender) Send(ctx context.Context, destination string, kind ports.TemplateKind, params map[string]string) error {
	subject, body, err := Render(kind, params)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "notification sent",
		"destination", destination,
		"template", kind,
		"subject", subject,
		"body", body,
	)
	return nil
}

type timeoutSender struct {
	next    ports.Notifier
	timeout time.Duration
}

// WithTimeout bounds every Send of next. It does not retry.
func WithTimeout(next ports.Notifier, timeout time.Duration) ports.Notifier {
	return &timeoutSender{next: next, timeout: timeout}
}

func (s *timeoutSender) Send(ctx context.Context, destination string, kind ports.TemplateKind, params map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.next.Send(ctx, destination, kind, params)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notification to %s timed out: %w", destination, ctx.Err())
	}
}
