package quote

import (
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Form field names posted by the quote form.
const (
	fieldFirstName          = "first_name"
	fieldLastName           = "last_name"
	fieldPhone              = "phone"
	fieldEmail              = "email"
	fieldAddress            = "address"
	fieldSuburb             = "suburb"
	fieldOccupantType       = "occupantType"
	fieldQuestions          = "questions"
	fieldService            = "service_selected"
	fieldQuotePreference    = "quotePreference"
	fieldAsbestosPreference = "asbestosPreference"
	fieldMouldRooms         = "mould_rooms"
	fieldMouldCause         = "mould_cause"
	fieldMouldLocation      = "mould_location"
	fieldMouldDescription   = "mould_description"
	fieldMouldAdditional    = "mould_additional"
	fieldAsbestosAreas      = "asbestos_areas"
	fieldAsbestosTested     = "asbestos_tested"
	fieldAsbestosLocation   = "asbestos_location"
	fieldAsbestosDesc       = "asbestos_description"
	fieldAsbestosSize       = "asbestos_size"
	fieldPhotos             = "photos"
)

// ErrTooLarge is returned when the upload exceeds the configured limit.
var ErrTooLarge = errors.New("quote: submission too large")

// Attachment is an uploaded photo.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size is the attachment length in bytes.
func (a Attachment) Size() int64 { return int64(len(a.Data)) }

// MouldDetails holds the mould-specific answers.
type MouldDetails struct {
	Rooms       string
	Cause       string
	Locations   string
	Description string
	Additional  string
}

// AsbestosDetails holds the asbestos-specific answers.
type AsbestosDetails struct {
	Areas       string
	Tested      string
	Locations   string
	Description string
	Size        string
}

// Submission is a sanitised quote request. Absent fields are empty strings.
type Submission struct {
	ID         string
	ReceivedAt time.Time

	Service            string
	FirstName          string
	LastName           string
	Phone              string
	Email              string
	Address            string
	Suburb             string
	OccupantType       string
	Questions          string
	QuotePreference    string
	AsbestosPreference string

	Mould    MouldDetails
	Asbestos AsbestosDetails

	Attachments []Attachment
}

// IsMould reports whether the selected service is a mould service.
func (s Submission) IsMould() bool {
	return strings.Contains(s.Service, "Mould")
}

// Preference returns the preference answer matching the service.
func (s Submission) Preference() string {
	if s.IsMould() {
		return s.QuotePreference
	}
	return s.AsbestosPreference
}

// FullName joins first and last name.
func (s Submission) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

var strictPolicy = bluemonday.StrictPolicy()

// cleanText trims, removes backslash escapes and strips markup from free text. The result is
// plain text; escaping happens once, in the templates.
func cleanText(v string) string {
	return stripMarkup(stripSlashes(strings.TrimSpace(v)))
}

// cleanChoice trims and strips markup from a value picked from a fixed list.
func cleanChoice(v string) string {
	return stripMarkup(strings.TrimSpace(v))
}

func stripMarkup(v string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(v)))
}

func stripSlashes(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	escaped := false
	for _, r := range v {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// ParseRequest reads a multipart or urlencoded quote form. It never fails on missing fields.
func ParseRequest(r *http.Request, maxBytes int64) (Submission, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	err := r.ParseMultipartForm(maxBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return Submission{}, ErrTooLarge
		}
		return Submission{}, fmt.Errorf("quote: parse form: %w", err)
	}

	get := func(name string) string { return r.Form.Get(name) }
	list := func(name string) string {
		values := append([]string{}, r.Form[name]...)
		values = append(values, r.Form[name+"[]"]...)
		out := make([]string, 0, len(values))
		for _, v := range values {
			if c := cleanChoice(v); c != "" {
				out = append(out, c)
			}
		}
		return strings.Join(out, ", ")
	}

	sub := Submission{
		Service:            cleanChoice(get(fieldService)),
		FirstName:          cleanText(get(fieldFirstName)),
		LastName:           cleanText(get(fieldLastName)),
		Phone:              cleanText(get(fieldPhone)),
		Email:              cleanText(get(fieldEmail)),
		Address:            cleanText(get(fieldAddress)),
		Suburb:             cleanText(get(fieldSuburb)),
		OccupantType:       cleanChoice(get(fieldOccupantType)),
		Questions:          cleanText(get(fieldQuestions)),
		QuotePreference:    cleanChoice(get(fieldQuotePreference)),
		AsbestosPreference: cleanChoice(get(fieldAsbestosPreference)),
		Mould: MouldDetails{
			Rooms:       cleanChoice(get(fieldMouldRooms)),
			Cause:       cleanChoice(get(fieldMouldCause)),
			Locations:   list(fieldMouldLocation),
			Description: cleanText(get(fieldMouldDescription)),
			Additional:  cleanText(get(fieldMouldAdditional)),
		},
		Asbestos: AsbestosDetails{
			Areas:       cleanChoice(get(fieldAsbestosAreas)),
			Tested:      cleanChoice(get(fieldAsbestosTested)),
			Locations:   list(fieldAsbestosLocation),
			Description: cleanText(get(fieldAsbestosDesc)),
			Size:        cleanText(get(fieldAsbestosSize)),
		},
	}

	if r.MultipartForm != nil {
		headers := append([]*multipart.FileHeader{}, r.MultipartForm.File[fieldPhotos]...)
		headers = append(headers, r.MultipartForm.File[fieldPhotos+"[]"]...)
		for _, fh := range headers {
			att, ok, err := readAttachment(fh)
			if err != nil {
				return Submission{}, err
			}
			if ok {
				sub.Attachments = append(sub.Attachments, att)
			}
		}
	}
	return sub, nil
}

func readAttachment(fh *multipart.FileHeader) (Attachment, bool, error) {
	name := strings.TrimSpace(fh.Filename)
	if name == "" || fh.Size == 0 {
		return Attachment{}, false, nil
	}
	f, err := fh.Open()
	if err != nil {
		return Attachment{}, false, fmt.Errorf("quote: open upload %s: %w", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return Attachment{}, false, fmt.Errorf("quote: read upload %s: %w", name, err)
	}
	if len(data) == 0 {
		return Attachment{}, false, nil
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return Attachment{Filename: name, ContentType: contentType, Data: data}, true, nil
}
