package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"catchphish/internal/config"
)

func TestNewService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.Config
		wantEnabled bool
	}{
		{
			name: "enabled when all SMTP settings configured",
			cfg: &config.Config{
				SMTPEnabled: true,
				SMTPHost:    "smtp.example.com",
				SMTPPort:    587,
				SMTPFrom:    "noreply@example.com",
			},
			wantEnabled: true,
		},
		{
			name: "disabled when SMTPEnabled is false",
			cfg: &config.Config{
				SMTPEnabled: false,
				SMTPHost:    "smtp.example.com",
				SMTPPort:    587,
				SMTPFrom:    "noreply@example.com",
			},
			wantEnabled: false,
		},
		{
			name: "disabled when SMTPHost is empty",
			cfg: &config.Config{
				SMTPEnabled: true,
				SMTPPort:    587,
				SMTPFrom:    "noreply@example.com",
			},
			wantEnabled: false,
		},
		{
			name: "disabled when SMTPFrom is empty",
			cfg: &config.Config{
				SMTPEnabled: true,
				SMTPHost:    "smtp.example.com",
				SMTPPort:    587,
			},
			wantEnabled: false,
		},
		{
			name:        "disabled with empty config",
			cfg:         &config.Config{},
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.cfg)
			if svc.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", svc.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestService_Send_Disabled(t *testing.T) {
	svc := NewService(&config.Config{})

	err := svc.Send(context.Background(), Message{To: []string{"cert@example.org"}, Subject: "Test", Text: "x"})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Send() error = %v, want %v", err, ErrDisabled)
	}
}

func TestService_Send_NoRecipients(t *testing.T) {
	svc := NewService(&config.Config{
		SMTPEnabled: true,
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
		SMTPFrom:    "noreply@example.com",
	})

	if err := svc.Send(context.Background(), Message{Subject: "Test"}); err == nil {
		t.Error("Send() with no recipients should fail")
	}
}

func TestService_FromHeader(t *testing.T) {
	tests := []struct {
		name       string
		fromName   string
		fromAddr   string
		wantHeader string
	}{
		{
			name:       "with display name",
			fromName:   "CatchPhish",
			fromAddr:   "noreply@example.com",
			wantHeader: `"CatchPhish" <noreply@example.com>`,
		},
		{
			name:       "without display name",
			fromAddr:   "noreply@example.com",
			wantHeader: "noreply@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&config.Config{SMTPFrom: tt.fromAddr, SMTPFromName: tt.fromName})
			if got := svc.fromHeader(); got != tt.wantHeader {
				t.Errorf("fromHeader() = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

type mimePart struct {
	contentType string
	filename    string
	body        []byte
}

// parseMessage flattens a multipart message into its leaf parts, decoding base64 bodies.
func parseMessage(t *testing.T, raw []byte) (*mail.Message, []mimePart) {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var parts []mimePart
	var walk func(ctype string, r io.Reader)
	walk = func(ctype string, r io.Reader) {
		mediaType, params, err := mime.ParseMediaType(ctype)
		if err != nil {
			t.Fatalf("ParseMediaType(%q) error = %v", ctype, err)
		}
		mr := multipart.NewReader(r, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil {
				t.Fatalf("NextPart() in %s error = %v", mediaType, err)
			}
			pt := p.Header.Get("Content-Type")
			if strings.HasPrefix(pt, "multipart/") {
				walk(pt, p)
				continue
			}
			data, _ := io.ReadAll(p)
			if p.Header.Get("Content-Transfer-Encoding") == "base64" {
				data, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(string(data), "\r\n", ""))
				if err != nil {
					t.Fatalf("base64 decode error = %v", err)
				}
			}
			parts = append(parts, mimePart{contentType: pt, filename: p.FileName(), body: data})
		}
	}
	walk(msg.Header.Get("Content-Type"), msg.Body)
	return msg, parts
}

func TestService_BuildMessage(t *testing.T) {
	svc := NewService(&config.Config{SMTPFrom: "noreply@example.com", SMTPFromName: "CatchPhish"})

	raw, err := svc.buildMessage(Message{
		To:      []string{"cert@example.org", "abuse@example.net"},
		Subject: "Phishing incident report: paypa1.com",
		HTML:    "<p>HTML content</p>",
		Text:    "Text content",
		Attachments: []Attachment{
			{Filename: "incident.html", ContentType: "text/html", Data: []byte("<html>report</html>")},
			{Filename: "shot.png", ContentType: "image/png", Data: bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 50)},
		},
	})
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}

	msg, parts := parseMessage(t, raw)
	if got := msg.Header.Get("To"); got != "cert@example.org, abuse@example.net" {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("MIME-Version"); got != "1.0" {
		t.Errorf("MIME-Version = %q", got)
	}
	if len(parts) != 4 {
		t.Fatalf("got %d parts, want 4", len(parts))
	}

	want := []struct {
		prefix, filename, body string
	}{
		{"text/plain", "", "Text content"},
		{"text/html", "", "<p>HTML content</p>"},
		{"text/html", "incident.html", "<html>report</html>"},
	}
	for i, w := range want {
		if !strings.HasPrefix(parts[i].contentType, w.prefix) {
			t.Errorf("part %d Content-Type = %q, want %s", i, parts[i].contentType, w.prefix)
		}
		if parts[i].filename != w.filename {
			t.Errorf("part %d filename = %q, want %q", i, parts[i].filename, w.filename)
		}
		if string(parts[i].body) != w.body {
			t.Errorf("part %d body = %q, want %q", i, parts[i].body, w.body)
		}
	}
	if parts[3].filename != "shot.png" || len(parts[3].body) != 200 {
		t.Errorf("screenshot part = %q (%d bytes)", parts[3].filename, len(parts[3].body))
	}
}

// smtpCapture is a minimal SMTP server that records one transaction.
type smtpCapture struct {
	mu   sync.Mutex
	from string
	rcpt []string
	data []byte
	fail string // reply to RCPT with this error when set
}

func (c *smtpCapture) message() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *smtpCapture) envelope() (string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.from, append([]string(nil), c.rcpt...)
}

func startSMTP(t *testing.T, c *smtpCapture) *config.Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go c.serve(conn)
		}
	}()

	return &config.Config{
		SMTPEnabled: true,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    ln.Addr().(*net.TCPAddr).Port,
		SMTPFrom:    "noreply@example.com",
		SMTPTLS:     "none",
		SiteTitle:   "CatchPhish",
		BaseURL:     "https://catchphish.example.com",
	}
}

func (c *smtpCapture) serve(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			tp.PrintfLine("250 localhost")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			c.mu.Lock()
			c.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			c.mu.Unlock()
			tp.PrintfLine("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			if c.fail != "" {
				tp.PrintfLine("%s", c.fail)
				continue
			}
			c.mu.Lock()
			c.rcpt = append(c.rcpt, strings.Trim(line[len("RCPT TO:"):], "<> "))
			c.mu.Unlock()
			tp.PrintfLine("250 OK")
		case upper == "DATA":
			tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			c.mu.Lock()
			c.data = data
			c.mu.Unlock()
			tp.PrintfLine("250 OK")
		case upper == "QUIT":
			tp.PrintfLine("221 Bye")
			return
		default:
			tp.PrintfLine("502 Command not implemented")
		}
	}
}

func TestService_Send(t *testing.T) {
	capture := &smtpCapture{}
	svc := NewService(startSMTP(t, capture))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := svc.Send(ctx, Message{To: []string{"cert@example.org"}, Subject: "Report", Text: "hello"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	from, rcpt := capture.envelope()
	if from != "noreply@example.com" {
		t.Errorf("MAIL FROM = %q", from)
	}
	if len(rcpt) != 1 || rcpt[0] != "cert@example.org" {
		t.Errorf("RCPT TO = %v", rcpt)
	}
	_, parts := parseMessage(t, capture.message())
	if len(parts) != 1 || string(parts[0].body) != "hello" {
		t.Errorf("parts = %+v", parts)
	}
}

func TestService_Send_Rejected(t *testing.T) {
	capture := &smtpCapture{fail: "550 mailbox unavailable"}
	svc := NewService(startSMTP(t, capture))

	err := svc.Send(context.Background(), Message{To: []string{"nobody@example.org"}, Subject: "Report", Text: "hello"})
	if err == nil || !strings.Contains(err.Error(), "RCPT") {
		t.Errorf("Send() error = %v, want RCPT failure", err)
	}
}
