package web

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"time"

	"github.com/sweeney/irrigation-processor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Irrigation Processor</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 45%; }
.ok { color: green; font-weight: bold; }
.warn { color: orange; font-weight: bold; }
.bad { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigation Processor</h1>

<table>
<tr><th>Sensors</th><td>{{.Summary.Total}}</td></tr>
<tr><th>OK</th><td class="ok">{{.Summary.OK}}</td></tr>
<tr><th>Noisy</th><td {{if .Summary.Noisy}}class="warn"{{end}}>{{.Summary.Noisy}}</td></tr>
<tr><th>Spiky</th><td {{if .Summary.Spiky}}class="warn"{{end}}>{{.Summary.Spiky}}</td></tr>
<tr><th>Stale</th><td {{if .Summary.Stale}}class="bad"{{end}}>{{.Summary.Stale}}</td></tr>
<tr><th>Mean noise score</th><td>{{printf "%.3f" .Summary.MeanNoise}}</td></tr>
</table>

<table>
<tr><th>Samples received</th><td>{{.Counts.Received}}</td></tr>
<tr><th>Malformed dropped</th><td>{{.Counts.Malformed}}</td></tr>
<tr><th>Out-of-order dropped</th><td>{{.Counts.RejectedOOO}}</td></tr>
<tr><th>Queue dropped</th><td>{{.Counts.QueueDropped}}</td></tr>
<tr><th>Readings published</th><td>{{.Counts.Published}}</td></tr>
<tr><th>Publish errors</th><td>{{.Counts.PublishErrors}}</td></tr>
</table>

<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">
{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}})</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>

<p><a href="/index.json">status json</a> · <a href="/metrics">metrics</a></p>
</body>
</html>`

func renderHTML(w io.Writer, snap status.Snapshot) {
	if err := indexTmpl.Execute(w, snap); err != nil {
		slog.Warn("render status page", "error", err)
	}
}
