package email

import (
	"fmt"
	"html"
	"strings"

	"catchphish/internal/config"
	"catchphish/internal/document"
)

// Templates provides email template generation.
type Templates struct {
	cfg *config.Config
}

// NewTemplates creates a new templates instance.
func NewTemplates(cfg *config.Config) *Templates {
	return &Templates{cfg: cfg}
}

// baseHTML wraps content in a consistent HTML email template.
func (t *Templates) baseHTML(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #b91c1c; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
        .header h1 { margin: 0; font-size: 22px; }
        .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
        .footer { background: #f3f4f6; padding: 15px; text-align: center; font-size: 12px; color: #6b7280; border-radius: 0 0 8px 8px; border: 1px solid #e5e7eb; border-top: none; }
        .info-box { background: white; border: 1px solid #e5e7eb; border-radius: 6px; padding: 15px; margin: 15px 0; }
        .label { font-weight: 600; color: #374151; }
        code { background: #e5e7eb; padding: 2px 6px; border-radius: 4px; font-family: monospace; }
    </style>
</head>
<body>
    <div class="header">
        <h1>%s</h1>
    </div>
    <div class="content">
        %s
    </div>
    <div class="footer">
        <p>This report was generated by %s</p>
        <p><a href="%s">%s</a></p>
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), content, html.EscapeString(t.cfg.SiteTitle), t.cfg.BaseURL, t.cfg.BaseURL)
}

// Incident generates the cover email for an incident report. The full
// report travels as an attachment.
func (t *Templates) Incident(doc *document.Document, withScreenshot bool) (subject, htmlBody, textBody string) {
	inc := doc.Incident
	subject = doc.Subject

	attachments := "The full incident report is attached."
	if withScreenshot {
		attachments = "The full incident report and a screenshot of the page are attached."
	}

	var facts strings.Builder
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&facts, `<p><span class="label">%s:</span> %s</p>`, label, html.EscapeString(value))
		}
	}
	row("Domain", inc.Domain)
	row("Risk score", inc.Score+" / 100")
	row("Confidence", inc.Tier)
	row("IP addresses", strings.Join(inc.IPAddresses, ", "))
	row("Registrar", inc.Registrar)
	row("Detected", inc.Detected)

	content := fmt.Sprintf(`
        <p>We are reporting a domain that our monitoring identified as a likely phishing site.
        Please investigate and take it down if appropriate.</p>

        <div class="info-box">
            <p><span class="label">URL:</span> <code>%s</code></p>
            %s
        </div>

        <p>%s</p>
    `,
		html.EscapeString(inc.URL),
		facts.String(),
		attachments,
	)

	htmlBody = t.baseHTML(subject, content)

	textBody = fmt.Sprintf(`We are reporting a domain that our monitoring identified as a likely
phishing site. Please investigate and take it down if appropriate.
%s

%s
--
%s
%s`,
		attachments,
		doc.Text,
		t.cfg.SiteTitle,
		t.cfg.BaseURL,
	)

	return
}
