package email

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"catchphish/internal/config"
	"catchphish/internal/document"
)

func sampleDocument() *document.Document {
	inc := document.Incident{
		SiteTitle:   "CatchPhish",
		Domain:      "paypa1.com",
		URL:         "http://paypa1.com/login?a=1&b=2",
		Score:       "85.0",
		Tier:        "High",
		IPAddresses: []string{"203.0.113.7"},
		Registrar:   "Example <Registrar>",
		Detected:    time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC).Format(time.RFC1123),
		IsPhishing:  true,
	}
	return &document.Document{
		Incident: inc,
		Subject:  document.Subject(inc),
		HTML:     "<html>full report</html>",
		Text:     document.Text(inc),
		Filename: "incident-paypa1_com.html",
	}
}

func TestNotifier_Recipients(t *testing.T) {
	n := NewNotifier(&config.Config{ReportRecipient: "cert@example.org, soc@example.org"})

	tests := []struct {
		name     string
		override string
		want     []string
	}{
		{"configured default", "", []string{"cert@example.org", "soc@example.org"}},
		{"override", "abuse@registrar.example", []string{"abuse@registrar.example"}},
		{"override list", "a@x.example, ,b@x.example", []string{"a@x.example", "b@x.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Recipients(tt.override); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Recipients(%q) = %v, want %v", tt.override, got, tt.want)
			}
		})
	}

	if got := NewNotifier(&config.Config{}).Recipients(""); len(got) != 0 {
		t.Errorf("Recipients() without config = %v, want none", got)
	}
}

func TestNotifier_SendIncident(t *testing.T) {
	capture := &smtpCapture{}
	n := NewNotifier(startSMTP(t, capture))

	err := n.SendIncident(context.Background(), sampleDocument(), []byte("png-bytes"), []string{"cert@example.org"})
	if err != nil {
		t.Fatalf("SendIncident() error = %v", err)
	}

	msg, parts := parseMessage(t, capture.message())
	if subj := msg.Header.Get("Subject"); !strings.Contains(subj, "paypa1.com") {
		t.Errorf("Subject = %q", subj)
	}

	var filenames []string
	for _, p := range parts {
		if p.filename != "" {
			filenames = append(filenames, p.filename)
		}
	}
	want := []string{"incident-paypa1_com.html", "incident-paypa1_com.png"}
	if !reflect.DeepEqual(filenames, want) {
		t.Errorf("attachments = %v, want %v", filenames, want)
	}
}

func TestNotifier_SendIncident_Disabled(t *testing.T) {
	n := NewNotifier(&config.Config{})
	if n.IsEnabled() {
		t.Fatal("IsEnabled() = true for empty config")
	}
	if err := n.SendIncident(context.Background(), sampleDocument(), nil, []string{"cert@example.org"}); err != ErrDisabled {
		t.Errorf("SendIncident() error = %v, want %v", err, ErrDisabled)
	}
}

func TestTemplates_Incident(t *testing.T) {
	tmpl := NewTemplates(&config.Config{SiteTitle: "CatchPhish", BaseURL: "https://catchphish.example.com"})
	doc := sampleDocument()

	tests := []struct {
		name           string
		withScreenshot bool
		wantPhrase     string
	}{
		{"report only", false, "The full incident report is attached."},
		{"with screenshot", true, "a screenshot of the page are attached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, htmlBody, textBody := tmpl.Incident(doc, tt.withScreenshot)

			if subject != doc.Subject {
				t.Errorf("subject = %q, want %q", subject, doc.Subject)
			}
			for _, want := range []string{tt.wantPhrase, "203.0.113.7", "Example &lt;Registrar&gt;", "a=1&amp;b=2"} {
				if !strings.Contains(htmlBody, want) {
					t.Errorf("HTML missing %q", want)
				}
			}
			if !strings.Contains(textBody, tt.wantPhrase) || !strings.Contains(textBody, "PHISHING INCIDENT REPORT") {
				t.Errorf("text body missing content:\n%s", textBody)
			}
			if !strings.Contains(textBody, "https://catchphish.example.com") {
				t.Error("text body missing footer link")
			}
		})
	}
}
