package quote

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"jimshazmatremoval.com.au/auburn-web/internal/config"
	"jimshazmatremoval.com.au/auburn-web/internal/site"
)

func newTestHandler(t *testing.T, transport Transport, cfg config.MailConfig) *Handler {
	t.Helper()
	relay := newTestRelay(t, transport, cfg, nil)
	return NewHandler(relay, newTestRenderer(t), site.Default().Pages, cfg.MaxUploadBytes)
}

func TestHandlerRedirectsNonPost(t *testing.T) {
	h := newTestHandler(t, &fakeTransport{}, testMailConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit-form.php", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/index.html", rec.Header().Get("Location"))
}

func TestHandlerRedirectsToThankYou(t *testing.T) {
	transport := &fakeTransport{}
	h := newTestHandler(t, transport, testMailConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, mouldFields()))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/thank-you.html", rec.Header().Get("Location"))
	require.Len(t, transport.sent, 2)
}

func TestHandlerSurfacesPartialDelivery(t *testing.T) {
	cfg := testMailConfig()
	cfg.SecondaryPolicy = config.SecondarySurface
	h := newTestHandler(t, &fakeTransport{failTo: map[string]error{"office@": errors.New("refused")}}, cfg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, mouldFields()))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/thank-you.html?delivery=partial", rec.Header().Get("Location"))
}

func TestHandlerPrimaryFailureShowsErrorPage(t *testing.T) {
	h := newTestHandler(t, &fakeTransport{failTo: map[string]error{"auburn@": errors.New("down")}}, testMailConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, mouldFields()))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "Sorry, there was an error sending your message.", doc.Find("h2").Text())
	require.Contains(t, doc.Find("p").First().Text(), "Please try again later or contact us directly.")
	link := doc.Find("a")
	require.Equal(t, "Go back to form", link.Text())
	href, _ := link.Attr("href")
	require.Equal(t, "/quote.html", href)
}

func TestHandlerRejectsOversizedUpload(t *testing.T) {
	cfg := testMailConfig()
	cfg.MaxUploadBytes = 256
	transport := &fakeTransport{}
	h := newTestHandler(t, transport, cfg)

	req := multipartRequest(t, mouldFields(), formFile{field: "photos", name: "big.jpg", data: make([]byte, 2048)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Empty(t, transport.sent)
}
