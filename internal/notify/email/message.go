// Package email sends run summaries by email, either through the SendGrid v3
// API or directly over SMTP. Both senders are best-effort: failures are logged
// and never returned.
package email

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"tap_notify/internal/domain"
)

const (
	CircleGreen = "🟢"
	CircleRed   = "🔴"
)

// DefaultComments replaces empty comments in the email body.
const DefaultComments = "The connector is performing as expected!"

// Brand names the team signing the email. URL, when set, is linked at the
// end of the HTML body.
type Brand struct {
	Name string
	URL  string
}

// Message is a fully addressed email with a plain-text and an HTML body.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if m.From == "" || m.To == "" {
		return domain.ErrMissingAddress
	}
	return nil
}

func statusCircle(status domain.Status) string {
	if status == domain.StatusFailure {
		return CircleRed
	}
	return CircleGreen
}

// Subject returns "<brand> | Data Sync | <circle>".
func Subject(brand string, run domain.RunSummary) string {
	return fmt.Sprintf("%s | Data Sync | %s", brand, statusCircle(run.Status()))
}

// StatusLine returns "Success | 🟢" or "Failure | 🔴".
func StatusLine(run domain.RunSummary) string {
	label := "Success"
	if run.Failed() {
		label = "Failure"
	}
	return fmt.Sprintf("%s | %s", label, statusCircle(run.Status()))
}

// CommentsText returns the run comments, or DefaultComments when there are none.
func CommentsText(run domain.RunSummary) string {
	if run.Comments != "" {
		return run.Comments
	}
	return DefaultComments
}

// RunMessage builds the run summary email for the given addresses.
func RunMessage(brand Brand, from, to string, run domain.RunSummary) Message {
	runTime := strconv.FormatFloat(run.RunTimeSeconds(), 'f', -1, 64)
	status := StatusLine(run)
	comments := CommentsText(run)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi,\n\n")
	fmt.Fprintf(&text, "It's the %s team with a data pipeline update!\n\n", brand.Name)
	fmt.Fprintf(&text, "Run ID: %d\n", run.RunID)
	fmt.Fprintf(&text, "Batch Start: %s\n", run.StartTimeString())
	fmt.Fprintf(&text, "Run Time: %s\n", runTime)
	fmt.Fprintf(&text, "Records Synced: %d\n", run.RecordCount)
	fmt.Fprintf(&text, "Status: %s\n", status)
	fmt.Fprintf(&text, "Comments: %s\n", comments)

	var body strings.Builder
	body.WriteString("<html>\n<body>\n")
	fmt.Fprintf(&body, "<p>Hi,<br>\n<br>\nIt's the %s team with a data pipeline update!<br>\n", html.EscapeString(brand.Name))
	body.WriteString("<ul>\n")
	fmt.Fprintf(&body, "<li>Run ID: %d</li>\n", run.RunID)
	fmt.Fprintf(&body, "<li>Batch Start: %s</li>\n", html.EscapeString(run.StartTimeString()))
	fmt.Fprintf(&body, "<li>Run Time: %s</li>\n", runTime)
	fmt.Fprintf(&body, "<li>Records Synced: %d</li>\n", run.RecordCount)
	fmt.Fprintf(&body, "<li>Status: %s</li>\n", status)
	fmt.Fprintf(&body, "<li>Comments: %s</li>\n", html.EscapeString(comments))
	body.WriteString("</ul>\n")
	if brand.URL != "" {
		fmt.Fprintf(&body, "<a href=\"%s\">%s</a><br>\n", html.EscapeString(brand.URL), html.EscapeString(brand.Name))
	}
	body.WriteString("</p>\n</body>\n</html>\n")

	return Message{
		From:    from,
		To:      to,
		Subject: Subject(brand.Name, run),
		Text:    text.String(),
		HTML:    body.String(),
	}
}
