package layout

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"
)

func renderPage(t *testing.T, data PageData, body templ.Component) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Page(data, body).Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestPageWrapsBody(t *testing.T) {
	t.Parallel()

	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<p id="inner">привет</p>`)
		return err
	})
	doc := renderPage(t, PageData{
		Title:            "Вход",
		EnvironmentName:  "staging",
		EnvironmentBadge: "STG",
		CSRFToken:        "tok",
	}, body)

	require.Equal(t, "Вход | Caspian Green Ports", doc.Find("title").Text())
	require.Equal(t, "привет", doc.Find("main #inner").Text())
	require.Equal(t, "STG", strings.TrimSpace(doc.Find("[data-environment-badge]").Text()))
	require.Equal(t, `{"X-CSRF-Token":"tok"}`, doc.Find("body").AttrOr("hx-headers", ""))
	require.Equal(t, "/public/static/portal.css", doc.Find("link[rel='stylesheet']").AttrOr("href", ""))
}

func TestPageWithoutBadgeOrToken(t *testing.T) {
	t.Parallel()

	doc := renderPage(t, PageData{}, nil)
	require.Equal(t, "Caspian Green Ports", doc.Find("title").Text())
	require.Equal(t, 0, doc.Find("[data-environment-badge]").Length())
	_, ok := doc.Find("body").Attr("hx-headers")
	require.False(t, ok)
}
