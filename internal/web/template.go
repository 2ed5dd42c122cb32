package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Presence Node</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.dot { display: inline-block; width: 10px; height: 10px; border-radius: 50%; }
.dot.green { background: green; }
.dot.yellow { background: orange; }
.dot.red { background: red; }
</style>
</head>
<body>
<h1>Presence Node{{if .Config.NodeID}} <small>{{.Config.NodeID}}</small>{{end}}</h1>

<h2>Output</h2>
<table>
<tr><th>Relay</th><td id="output" class="{{if .Engine.OutputOn}}on{{else}}off{{end}}">{{onOff .Engine.OutputOn}}</td></tr>
<tr><th>Present</th><td>{{.Engine.Present}}</td></tr>
<tr><th>Ready</th><td>{{if .Updated}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Devices</h2>
<table>
<tr><th>In table</th><td>{{.Engine.Devices}}</td></tr>
<tr><th>Active</th><td>{{.Engine.Active}}</td></tr>
<tr><th>Known</th><td>{{.Engine.Known}}</td></tr>
<tr><th>Ever seen</th><td>{{.Engine.EverSeen}}</td></tr>
</table>
<table id="known">
<thead><tr><th></th><th>Address</th><th>Name</th><th>Comment</th><th>RSSI</th><th>Threshold</th><th>Last seen</th></tr></thead>
<tbody></tbody>
</table>

<h2>Radio</h2>
<table>
<tr><th>Scan</th><td>{{.Scan.State}}</td></tr>
<tr><th>Cycles</th><td>{{.Scan.Cycles}} ({{.Scan.Failures}} failed)</td></tr>
<tr><th>Resets</th><td>{{.Scan.Resets}}</td></tr>
<tr><th>Dropped</th><td>{{.Scan.Dropped}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Radio}}</td></tr>
</table>

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
<tr><th>Scan window</th><td>{{.Config.ScanMs}}ms every {{.Config.CycleMs}}ms</td></tr>
<tr><th>Device timeout</th><td>{{.Config.TimeoutMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/devices">devices</a> | <a href="/api/output-log">output log</a> | <a href="/api/export-devices-file">export</a></p>

<script>
(function() {
  var body = document.querySelector("#known tbody");
  function cell(tr, text) {
    var td = document.createElement("td");
    td.textContent = text;
    tr.appendChild(td);
    return td;
  }
  function refresh() {
    fetch("/api/devices").then(function(r) { return r.json(); }).then(function(doc) {
      body.textContent = "";
      (doc.knownDevices || []).forEach(function(d) {
        var tr = document.createElement("tr");
        var dot = document.createElement("span");
        dot.className = "dot " + d.proximityStatus;
        cell(tr, "").appendChild(dot);
        cell(tr, d.address);
        cell(tr, d.name);
        cell(tr, d.comment);
        cell(tr, d.rssi);
        cell(tr, d.rssiThreshold);
        cell(tr, d.lastSeenRelative);
        body.appendChild(tr);
      });
    }).catch(function() {});
  }
  refresh();
  setInterval(refresh, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.WithField("component", "web").WithError(err).Warn("render index failed")
	}
}
