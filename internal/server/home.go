package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/morezero/mcp-engine/pkg/engine"
	"github.com/morezero/mcp-engine/pkg/performance"
	"github.com/morezero/mcp-engine/pkg/registry"
)

// homePageTemplate renders engine identity, health and the method table.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Info.Name}}</title>
  <style>{{template "css"}}</style>
</head>
<body>
  <h1>{{.Info.Name}}</h1>
  <p class="sub">Version {{.Info.Version}}, JSON-RPC {{.Info.Protocol}}, up {{.Info.UptimeSeconds}}s.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="{{if eq .Health.Status "healthy"}}ok{{else}}bad{{end}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}
    <p>{{$name}}: {{if $ok}}<span class="ok">up</span>{{else}}<span class="bad">down</span>{{end}}</p>
    {{end}}
    <p>Active requests: <span class="num">{{.Health.ActiveRequests}}</span> of {{.Info.Limits.MaxConcurrentRequests}},
       active batches: <span class="num">{{.Health.ActiveBatches}}</span> of {{.Info.Limits.MaxConcurrentBatches}},
       cached results: <span class="num">{{.Health.CacheSize}}</span></p>
  </section>

  <section>
    <h2>Methods</h2>
    {{if not .Methods}}
    <p class="sub">No methods registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Method</th><th>Cacheable</th><th>Rate class</th><th>Requests</th><th>Success %</th><th>Avg ms</th></tr>
      </thead>
      <tbody>
        {{range .Methods}}
        <tr>
          <td><a href="/methods/{{.Info.Name}}">{{.Info.Name}}</a></td>
          <td>{{.Info.Cacheable}}</td>
          <td>{{.Info.RateLimitClass}}</td>
          <td>{{.Stats.TotalRequests}}</td>
          <td>{{printf "%.1f" .Stats.SuccessRatePercent}}</td>
          <td>{{printf "%.2f" .Stats.AverageDurationMs}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// methodDetailPageTemplate is the HTML for a single method.
const methodDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Info.Name}}</title>
  <style>{{template "css"}}</style>
</head>
<body>
  <p><a href="/">&larr; Back</a></p>
  <h1>{{.Info.Name}}</h1>
  {{if .Info.Description}}<p>{{.Info.Description}}</p>{{end}}
  <table>
    <tr><th>Required params</th><td>{{range .Info.RequiredParams}}{{.}} {{else}}none{{end}}</td></tr>
    <tr><th>Optional params</th><td>{{range .Info.OptionalParams}}{{.}} {{else}}none{{end}}</td></tr>
    <tr><th>Cacheable</th><td>{{.Info.Cacheable}}</td></tr>
    <tr><th>Rate class</th><td>{{.Info.RateLimitClass}}</td></tr>
    <tr><th>Requests</th><td>{{.Stats.TotalRequests}} ({{.Stats.SuccessCount}} ok, {{.Stats.FailureCount}} failed, {{.Stats.CacheHits}} cached)</td></tr>
    <tr><th>Average duration</th><td>{{printf "%.2f" .Stats.AverageDurationMs}} ms</td></tr>
  </table>
</body>
</html>
`

// pageCSS is shared by every HTML page.
const pageCSS = `{{define "css"}}
body{font:15px/1.45 -apple-system,Segoe UI,Helvetica,sans-serif;color:#1b1f24;margin:0 auto;max-width:960px;padding:24px}
a{color:#1f5fbf;text-decoration:none}a:hover{text-decoration:underline}
h1{font-size:22px;margin:0 0 4px}h2{font-size:17px;border-bottom:1px solid #d8dee4;padding-bottom:4px}
.sub{color:#57606a;font-size:13px}
.ok{color:#1a7f37;font-weight:600}.bad{color:#cf222e;font-weight:600}
.num{font-variant-numeric:tabular-nums;font-weight:600}
table{border-collapse:collapse;width:100%}
td,th{border-bottom:1px solid #eaeef2;padding:6px 8px;text-align:left;vertical-align:top}
th{color:#57606a;font-weight:600;font-size:13px}
{{end}}`

type methodRow struct {
	Info  registry.MethodInfo
	Stats performance.Stats
}

// homeData is the data passed to the home page template.
type homeData struct {
	Info    *engine.InfoOutput
	Health  *engine.HealthOutput
	Methods []methodRow
}

func (h *httpHandler) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.Must(template.New("home").Parse(pageCSS)).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
		defer cancel()

		data := homeData{Info: h.engine.Info(), Health: h.engine.Health(ctx)}
		for _, info := range h.engine.Registry().Descriptors() {
			data.Methods = append(data.Methods, methodRow{Info: info, Stats: h.engine.Tracker().Stats(info.Name)})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func (h *httpHandler) handleMethodDetail() http.HandlerFunc {
	tmpl := template.Must(template.Must(template.New("method").Parse(pageCSS)).Parse(methodDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		desc, ok := h.engine.Registry().Lookup(r.PathValue("name"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		data := methodRow{Info: desc.Info(), Stats: h.engine.Tracker().Stats(desc.Name)}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - method template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
