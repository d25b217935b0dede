package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/dose-dispenser/internal/schedule"
	"github.com/sweeney/dose-dispenser/internal/status"
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
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Dose Dispenser</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
form { display: inline; }
.alert { border: 2px solid #c00; padding: 1em; margin: 1em 0; }
.note { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Dose Dispenser <span id="clock">{{.Clock}}</span></h1>

{{if .Alert}}
<div class="alert">
<h2>Time for your medication</h2>
<p><b>{{.Alert.Name}}</b> {{.Alert.Dose}} at {{.Alert.Time}}</p>
{{if .Controls}}
<form method="post" action="/alert/pick"><input type="hidden" name="redirect" value="1"><button>Pick</button></form>
<form method="post" action="/alert/skip"><input type="hidden" name="redirect" value="1"><button>Skip</button></form>
{{end}}
</div>
{{end}}

<h2>Next Dose</h2>
<table>
{{if .Main.Message}}<tr><th>Status</th><td>{{.Main.Message}}</td></tr>
{{else}}<tr><th>Medicine</th><td>{{orDash .Main.Name}}</td></tr>
<tr><th>Time</th><td>{{orDash .Main.Time}}</td></tr>
<tr><th>Dose</th><td>{{orDash .Main.Dose}}</td></tr>
<tr><th>Status</th><td>{{orDash .Main.Status}}</td></tr>{{end}}
</table>

{{if .Controls}}
<p>
{{range .Categories}}<form method="post" action="/view/{{.}}"><input type="hidden" name="redirect" value="1"><button>{{.Title}}</button></form> {{end}}
<form method="post" action="/sync"><input type="hidden" name="redirect" value="1"><button>Sync</button></form>
</p>
{{end}}

{{if .View}}
<h2>{{.View.Title}}</h2>
{{range .View.Lines}}<p class="note">{{.}}</p>{{end}}
{{if .View.Records}}
<table>
<tr><th>Medicine</th><th>Time</th><th>Dose</th><th>Slot</th></tr>
{{range .View.Records}}<tr><td>{{.Name}}</td><td>{{.ScheduledTime}}</td><td>{{.Dose}}</td><td>{{.Slot}}</td></tr>
{{end}}
</table>
{{end}}
{{if .Controls}}<form method="post" action="/view/close"><input type="hidden" name="redirect" value="1"><button>Back</button></form>{{end}}
{{end}}

<h2>Device</h2>
<table>
<tr><th>Slot</th><td>{{.Device.Slot}}</td></tr>
<tr><th>Lid</th><td>{{.Device.ServoDeg}}&deg;</td></tr>
<tr><th>IR armed</th><td>{{if .Device.IRArmed}}yes{{else}}no{{end}}</td></tr>
<tr><th>Alert state</th><td>{{orDash .Device.AlertState}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Backend</th><td class="{{if .Online}}connected{{else}}disconnected{{end}}">{{if .Online}}online{{else}}offline{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orDash .Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Alerts</th><td>{{.Counts.Alerts}}</td></tr>
<tr><th>Taken</th><td>{{.Counts.Taken}}</td></tr>
<tr><th>Skipped</th><td>{{.Counts.Skipped}}</td></tr>
<tr><th>Dismissed</th><td>{{.Counts.Dismissed}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Device</th><td>{{.Config.DeviceID}}</td></tr>
<tr><th>Backend URL</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Fetch</th><td>{{.Config.FetchIntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Firmware</th><td>{{orDash .Config.Firmware}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		Controls   bool
		Categories []schedule.Category
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		Controls:   controls,
		Categories: schedule.Categories,
	}
	indexTmpl.Execute(w, data)
}
