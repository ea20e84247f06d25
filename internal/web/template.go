package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/status"
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
	"ts": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04:05Z")
	},
	"pct": func(p float32) string {
		return fmt.Sprintf("%.1f%%", p*100)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fall Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.stopped { color: #888; }
.degraded { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Fall Sensor</h1>

<h2>Monitoring</h2>
<table>
<tr><th>Session</th><td id="session" class="{{if eq .Session "RUNNING"}}running{{else}}stopped{{end}}">{{.Session}}</td></tr>
<tr><th>Model</th><td class="{{if .ModelLoaded}}running{{else}}degraded{{end}}">{{if .ModelLoaded}}loaded{{else}}unavailable (detection disabled){{end}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td class="degraded">{{.LastError}}</td></tr>{{end}}
</table>
<form method="post" action="/session/start"><button>Start</button></form>
<form method="post" action="/session/stop"><button>Stop</button></form>

<h2>Detection</h2>
<table>
<tr><th>Windows</th><td>{{.Windows}}</td></tr>
<tr><th>Inference errors</th><td>{{.InferenceErrors}}</td></tr>
<tr><th>Falls detected</th><td>{{.Counts.Detections}}</td></tr>
<tr><th>Suppressed</th><td>{{.Counts.Suppressed}}</td></tr>
{{with .LastDispatch}}<tr><th>Last alert</th><td>{{.Delivered}}/{{.Attempted}} contacts reached</td></tr>{{end}}
</table>

<h2>Recent Falls</h2>
{{if .Events}}<table>
<tr><th>When</th><th>Confidence</th></tr>
{{range .Events}}<tr><td>{{ts .Timestamp}}</td><td>{{pct .Probability}}</td></tr>
{{end}}</table>{{else}}<p>None recorded.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Threshold</th><td>{{.Config.Threshold}}</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownMs}}ms</td></tr>
<tr><th>Window</th><td>{{.Config.WindowSize}} ({{.Config.WindowMode}})</td></tr>
<tr><th>Sensor</th><td>{{.Config.Sensor}}</td></tr>
<tr><th>Gateway</th><td>{{.Config.Gateway}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/events">Events</a> · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, events []logic.FallEvent) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Events []logic.FallEvent
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Events:   events,
	}
	return indexTmpl.Execute(w, data)
}
