package email

import (
	"context"
	"strings"

	"catchphish/internal/config"
	"catchphish/internal/document"
)

// Notifier dispatches incident reports to CERT mailboxes.
type Notifier struct {
	service   *Service
	templates *Templates
	cfg       *config.Config
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{
		service:   NewService(cfg),
		templates: NewTemplates(cfg),
		cfg:       cfg,
	}
}

// IsEnabled returns true if incidents can be delivered.
func (n *Notifier) IsEnabled() bool {
	return n.service.IsEnabled()
}

// Recipients resolves the mailboxes for a report: the explicit override if
// given, otherwise the configured CERT recipient.
func (n *Notifier) Recipients(override string) []string {
	src := override
	if src == "" {
		src = n.cfg.ReportRecipient
	}
	var out []string
	for _, r := range strings.Split(src, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SendIncident emails doc to recipients, attaching the rendered report and,
// when non-empty, a PNG screenshot.
func (n *Notifier) SendIncident(ctx context.Context, doc *document.Document, screenshot []byte, recipients []string) error {
	subject, htmlBody, textBody := n.templates.Incident(doc, len(screenshot) > 0)

	msg := Message{
		To:      recipients,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
		Attachments: []Attachment{{
			Filename:    doc.Filename,
			ContentType: "text/html; charset=UTF-8",
			Data:        []byte(doc.HTML),
		}},
	}
	if len(screenshot) > 0 {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    strings.TrimSuffix(doc.Filename, ".html") + ".png",
			ContentType: "image/png",
			Data:        screenshot,
		})
	}
	return n.service.Send(ctx, msg)
}
