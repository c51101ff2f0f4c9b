// Package layout renders the HTML document shell shared by every portal page.
package layout

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"
)

const defaultTitle = "Caspian Green Ports"

//go:embed layout.tmpl
var files embed.FS

var views = template.Must(template.New("layout").ParseFS(files, "layout.tmpl"))

// PageData describes the document around a page body.
type PageData struct {
	Title            string
	EnvironmentName  string
	EnvironmentBadge string
	CSRFToken        string
	CSRFHeader       string
	StaticPath       string
}

type pageView struct {
	PageData
	FullTitle string
	HXHeaders string
	Body      template.HTML
}

// Page wraps body in the portal document.
func Page(data PageData, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		if body != nil {
			if err := body.Render(ctx, &buf); err != nil {
				return err
			}
		}
		view := pageView{
			PageData:  data,
			FullTitle: fullTitle(data.Title),
			HXHeaders: hxHeaders(data.CSRFHeader, data.CSRFToken),
			Body:      template.HTML(buf.String()),
		}
		if view.StaticPath == "" {
			view.StaticPath = "/public/static"
		}
		return views.ExecuteTemplate(w, "page", view)
	})
}

func fullTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultTitle
	}
	return title + " | " + defaultTitle
}

// hxHeaders makes htmx echo the CSRF token on every request it issues.
func hxHeaders(header, token string) string {
	if token == "" {
		return ""
	}
	if header == "" {
		header = "X-CSRF-Token"
	}
	raw, err := json.Marshal(map[string]string{header: token})
	if err != nil {
		return ""
	}
	return string(raw)
}
