package router

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// FlagLoader returns the session flags for an incoming request.
type FlagLoader func(r *http.Request) (Flags, error)

// PageData is passed to every view template.
type PageData struct {
	AppName  string
	View     View
	Path     string
	StreamWS string
}

// Pages serves the views of a route table, guarding each navigation with the
// flags of the requesting session.
type Pages struct {
	table   *Table
	load    FlagLoader
	appName string
}

// NewPages returns a handler serving table's views. load may be nil, in which
// case every session is treated as having no flags.
func NewPages(table *Table, load FlagLoader, appName string) *Pages {
	return &Pages{table: table, load: load, appName: appName}
}

// ServeHTTP resolves the request path, applies the guard and renders the
// resulting view or redirects to the landing page.
func (p *Pages) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var flags Flags
	if p.load != nil {
		f, err := p.load(r)
		if err != nil {
			// Unknown session state never opens a guarded route.
			log.Warn().Err(err).Str("req_id", middleware.GetReqID(r.Context())).
				Msg("[pages] load session flags failed")
		} else {
			flags = f
		}
	}

	nav := NewNavigator(p.table, StaticSession(flags))
	decision := nav.Navigate(r.URL.Path)
	if decision.Redirected {
		log.Debug().Str("path", r.URL.Path).Str("view", string(decision.Requested.Route.View)).
			Msg("[pages] guard redirect")
		http.Redirect(w, r, nav.RedirectPath(), http.StatusFound)
		return
	}

	status := http.StatusOK
	if decision.View == ViewNotFound {
		status = http.StatusNotFound
	}
	p.render(w, status, PageData{
		AppName:  p.appName,
		View:     decision.View,
		Path:     r.URL.Path,
		StreamWS: "/ws/background",
	})
}

func (p *Pages) render(w http.ResponseWriter, status int, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, string(data.View)+".html", data); err != nil {
		log.Error().Err(err).Str("view", string(data.View)).Msg("[pages] render failed")
	}
}
