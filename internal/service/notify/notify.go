package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/webglow/voice-support/backend/internal/config"
)

// TranscriptEmail carries everything needed to notify the site owner that
// the voice service was used.
type TranscriptEmail struct {
	Transcript    string
	CallStartTime time.Time
	CallEndTime   time.Time
	Duration      int
	BrowserInfo   string
}

// Notifier sends transcript emails through Resend. Delivery is a best-effort
// side effect of call end; failures are reported to the caller for logging only.
type Notifier struct {
	client *resend.Client
	from   string
	to     string
}

// New creates a Notifier, or nil when the Resend credentials are absent.
func New(cfg config.NotifyConfig) *Notifier {
	if !cfg.Enabled() {
		return nil
	}
	return &Notifier{
		client: resend.NewClient(cfg.APIKey),
		from:   cfg.From,
		to:     cfg.To,
	}
}

// SendTranscript emails the call transcript and metadata.
func (n *Notifier) SendTranscript(ctx context.Context, email TranscriptEmail) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: fmt.Sprintf("New Voice Service Usage - %s", email.CallStartTime.Format("Jan 2, 2006 at 3:04 PM")),
		Html:    buildTranscriptHTML(email),
	}

	if _, err := n.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send transcript email: %w", err)
	}
	return nil
}

func buildTranscriptHTML(email TranscriptEmail) string {
	browser := email.BrowserInfo
	if browser == "" {
		browser = "Unknown"
	}

	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	b.WriteString(`<h2 style="color: #2dd4bf;">New Voice Service Usage</h2>`)
	b.WriteString(`<p>A visitor used the voice service on the WebGlow Support website.</p>`)
	b.WriteString(`<div style="background-color: #1e293b; padding: 20px; border-radius: 8px; margin: 20px 0;">`)
	b.WriteString(`<h3 style="color: #2dd4bf; margin-top: 0;">Call Details</h3>`)
	b.WriteString(`<table style="width: 100%; color: #e2e8f0;">`)
	writeDetailRow(&b, "Start Time", email.CallStartTime.Format(time.RFC1123))
	writeDetailRow(&b, "End Time", email.CallEndTime.Format(time.RFC1123))
	writeDetailRow(&b, "Duration", FormatDuration(email.Duration))
	writeDetailRow(&b, "Browser/Device", browser)
	b.WriteString(`</table></div>`)
	b.WriteString(`<div style="background-color: #0f172a; padding: 20px; border-radius: 8px; margin: 20px 0;">`)
	b.WriteString(`<h3 style="color: #2dd4bf; margin-top: 0;">Transcript</h3>`)
	b.WriteString(`<pre style="color: #e2e8f0; white-space: pre-wrap; word-wrap: break-word; font-family: monospace; font-size: 14px; line-height: 1.6; margin: 0;">`)
	b.WriteString(html.EscapeString(email.Transcript))
	b.WriteString(`</pre></div>`)
	b.WriteString(`<hr style="border: none; border-top: 1px solid #334155; margin: 20px 0;">`)
	b.WriteString(`<p style="color: #64748b; font-size: 12px;">This is an automated notification from WebGlow Support.</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

func writeDetailRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, `<tr><td style="padding: 8px 0;"><strong>%s:</strong></td><td style="padding: 8px 0;">%s</td></tr>`,
		html.EscapeString(label), html.EscapeString(value))
}

// FormatDuration renders seconds as "N minutes M seconds".
func FormatDuration(seconds int) string {
	mins := seconds / 60
	secs := seconds % 60
	return fmt.Sprintf("%d %s %d %s", mins, plural(mins, "minute"), secs, plural(secs, "second"))
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
