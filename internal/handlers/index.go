package handlers

import (
	"context"
	"html/template"
	"net/http"

	"climate-api/pkg/logging"
)

type indexRoute struct {
	Path string
	Href string
}

var indexRoutes = []indexRoute{
	{Path: RoutePrecipitation, Href: RoutePrecipitation},
	{Path: RouteStations, Href: RouteStations},
	{Path: RouteTobs, Href: RouteTobs},
	{Path: "/api/v1.0/<start>", Href: "/api/v1.0/2017-01-01"},
	{Path: "/api/v1.0/<start>/<end>", Href: "/api/v1.0/2017-01-01/2017-01-07"},
	{Path: RouteDocs, Href: RouteDocs},
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en-us">
<head>
    <meta charset="UTF-8">
    <title>Climate API</title>
</head>
<body>
    <p>Welcome to the Climate API!</p>
    <u>Available Routes:</u><br/>
    {{range .}}<a href="{{.Href}}" target="_blank">{{.Path}}</a><br/>
    {{end}}
</body>
</html>`))

// Index handles GET / with an HTML list of the available routes
func (h *ClimateHandler) Index(w http.ResponseWriter, r *http.Request) {
	renderHTML(r.Context(), h.logger, w, indexTemplate, indexRoutes, RouteIndex)
}

// renderHTML executes tmpl into w. The status line is already sent when a
// write fails, so the error can only be logged.
func renderHTML(ctx context.Context, logger *logging.StructuredLogger, w http.ResponseWriter,
	tmpl *template.Template, data interface{}, route string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		logger.Error(ctx, "[API_RENDER_ERROR] Failed to render page", logging.Fields{
			"route":    route,
			"template": tmpl.Name(),
		}, err)
	}
}
