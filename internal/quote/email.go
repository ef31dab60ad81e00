package quote

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	subjectLayout   = "2006-01-02 15:04"
	submittedLayout = "02/01/2006 03:04 PM"
	notSpecified    = "Not specified"
	defaultSubject  = "Quote Request"
)

// Company is the business identity printed in notification footers.
type Company struct {
	Name         string
	Phone        string
	PhoneDial    string
	Email        string
	ServiceAreas string
}

// DefaultCompany describes the Auburn franchise.
func DefaultCompany() Company {
	return Company{
		Name:         "Jim's Hazardous Material Removal (Auburn)",
		Phone:        "0435 558 133",
		PhoneDial:    "0435558133",
		Email:        "auburn@jimshazmatremoval.com.au",
		ServiceAreas: "NSW, ACT, QLD",
	}
}

// Renderer builds notification subjects and bodies.
type Renderer struct {
	company      Company
	loc          *time.Location
	notification *template.Template
	errorPage    *template.Template
}

// NewRenderer parses the embedded templates. A nil location means UTC.
func NewRenderer(company Company, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	funcs := template.FuncMap{
		"nl2br":     nl2br,
		"kilobytes": kilobytes,
	}
	notification, err := template.New("notification.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/notification.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("quote: parse notification template: %w", err)
	}
	errorPage, err := template.New("error.html.tmpl").ParseFS(templateFS, "templates/error.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("quote: parse error template: %w", err)
	}
	return &Renderer{company: company, loc: loc, notification: notification, errorPage: errorPage}, nil
}

// Subject formats the mail subject for sub at now.
func (r *Renderer) Subject(sub Submission, now time.Time) string {
	service := sub.Service
	if service == "" {
		service = defaultSubject
	}
	return fmt.Sprintf("New Quote Request - %s - %s", service, now.In(r.loc).Format(subjectLayout))
}

type notificationView struct {
	Sub        Submission
	Badge      string
	Preference string
	Submitted  string
	Year       int
	Company    Company
}

// Notification renders the HTML body for sub at now.
func (r *Renderer) Notification(sub Submission, now time.Time) (string, error) {
	local := now.In(r.loc)
	view := notificationView{
		Sub:        sub,
		Badge:      sub.Service,
		Preference: sub.Preference(),
		Submitted:  local.Format(submittedLayout),
		Year:       local.Year(),
		Company:    r.company,
	}
	if view.Badge == "" {
		view.Badge = notSpecified
	}
	if view.Preference == "" {
		view.Preference = notSpecified
	}
	var buf bytes.Buffer
	if err := r.notification.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("quote: render notification: %w", err)
	}
	return buf.String(), nil
}

// ErrorPage writes the page shown when the primary delivery fails.
func (r *Renderer) ErrorPage(w io.Writer, formURL, requestID string) error {
	return r.errorPage.Execute(w, struct {
		Message   string
		FormURL   string
		RequestID string
	}{
		Message:   "Please try again later or contact us directly.",
		FormURL:   formURL,
		RequestID: requestID,
	})
}

var lineBreaks = strings.NewReplacer("\r\n", "<br />\r\n", "\n", "<br />\n", "\r", "<br />\r")

// nl2br escapes v and inserts a line break before each newline.
func nl2br(v string) template.HTML {
	return template.HTML(lineBreaks.Replace(template.HTMLEscapeString(v)))
}

// kilobytes renders n bytes as KiB rounded to two places, without trailing zeros.
func kilobytes(n int64) string {
	kb := math.Round(float64(n)/1024*100) / 100
	return strconv.FormatFloat(kb, 'f', -1, 64)
}
