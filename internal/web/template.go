package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/env-sensor/internal/status"
	"github.com/sweeney/env-sensor/internal/zcl"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime":  formatUptime,
	"celsius": func(v int16) string { return fixed(v, zcl.Temperature, "°C") },
	"percent": func(v int16) string { return fixed(v, zcl.Humidity, "%") },
	"period":  formatPeriod,
}).Parse(indexHTML))

// formatUptime renders d as e.g. "3d 4h 5m 6s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	out := ""
	for i, p := range parts {
		if out == "" && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", p.n, p.unit)
	}
	return out
}

func formatPeriod(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	return d.String()
}

func fixed(v int16, q zcl.Quantity, unit string) string {
	if v == q.Unknown {
		return "unknown"
	}
	return fmt.Sprintf("%.2f%s", float64(v)/q.Multiplier, unit)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Environment Sensor</title>
<style>
body { font: 14px/1.4 ui-monospace, monospace; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; text-transform: uppercase; color: #666; margin: 1.5em 0 0.3em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 6px; border-bottom: 1px solid #eee; }
th { width: 45%; font-weight: normal; color: #555; }
.on, .connected { color: #1a7f37; font-weight: bold; }
.off { color: #999; }
.unknown { color: #bf8700; }
.disconnected { color: #cf222e; }
</style>
</head>
<body>
<h1>{{.Attributes.Basic.ManufacturerName}} {{.Attributes.Basic.ModelID}}</h1>

<h2>Readings</h2>
<table>
<tr><th>Temperature</th><td id="temperature">{{celsius .Attributes.Temperature.Measured}}</td></tr>
<tr><th>Humidity</th><td id="humidity">{{percent .Attributes.Humidity.Measured}}</td></tr>
{{with .Measurement}}<tr><th>Last sample</th><td class="{{if .OK}}on{{else}}unknown{{end}}">{{.Time.UTC.Format "2006-01-02T15:04:05Z"}}{{if not .OK}} (incomplete){{end}}</td></tr>{{end}}
</table>

<h2>Network</h2>
<table>
<tr><th>Joined</th><td id="joined" class="{{if .Joined}}connected{{else}}disconnected{{end}}">{{if .Joined}}yes{{else}}no{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Client</th><td>{{.Config.ClientID}}</td></tr>
<tr><th>Buffered reports</th><td>{{.Buffered}}</td></tr>
{{with .LastSignal}}<tr><th>Last signal</th><td>{{.Type}} ({{.Status}}{{if .Err}}: {{.Err}}{{end}})</td></tr>{{end}}
</table>

<h2>Device</h2>
<table>
<tr><th>Identify</th><td id="identify" class="{{if .Identifying}}on{{else}}off{{end}}">{{if .Identifying}}{{.Attributes.Identify.IdentifyTime}}s{{else}}off{{end}}</td></tr>
<tr><th>Button</th><td>{{if .Button}}{{.Button}}{{else}}none{{end}}</td></tr>
<tr><th>Short presses</th><td>{{.Counts.ShortPresses}}</td></tr>
<tr><th>Long presses</th><td>{{.Counts.LongPresses}}</td></tr>
<tr><th>Factory resets</th><td>{{.Counts.FactoryResets}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Endpoint</th><td>{{.Config.Endpoint}}</td></tr>
<tr><th>Measurement period</th><td>{{period .Config.MeasurementPeriod}}</td></tr>
<tr><th>Keep-alive</th><td>{{period .Config.KeepAlive}}</td></tr>
<tr><th>Long poll</th><td>{{period .Config.LongPoll}}</td></tr>
<tr><th>Measurements</th><td>{{.Counts.Measurements}} ({{.Counts.FailedSamples}} failed)</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
