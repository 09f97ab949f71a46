package httpapi

import (
	"html/template"
	"net/http"
	"strings"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docqa</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 600px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; box-shadow: 0 25px 50px rgba(0,0,0,0.4); }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  .endpoint { font-family: "SF Mono", monospace; font-size: 0.9rem; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>docqa</h1>
  <p class="subtitle">Question answering over your uploaded documents.</p>
  <div class="section-title">Endpoints</div>
  {{range .}}<p class="endpoint">{{.}}</p>
  {{end}}
  <div class="section-title" style="margin-top:1.5rem">Try it</div>
  <pre><code>curl -F file=@manual.pdf http://localhost:8080/ingest
curl -d '{"message":"What is the return policy?"}' http://localhost:8080/chat</code></pre>
</div>
</body>
</html>`))

type rootResponse struct {
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

// NewLandingHandler lists the endpoints: an HTML page for browsers, JSON otherwise.
func NewLandingHandler(endpoints []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), "text/html") {
			writeJSON(w, http.StatusOK, rootResponse{Status: "ok", Endpoints: endpoints})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = landingTemplate.Execute(w, endpoints)
	}
}
