package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type source interface {
	Observe() relayauth.Observation
}

// Exporter renders a Controller's observation in Prometheus text format.
type Exporter struct {
	source source
}

// New reads from c.
func New(c *relayauth.Controller) *Exporter {
	if c == nil {
		return &Exporter{}
	}
	return &Exporter{source: c}
}

// NewFromSource reads from any Observe implementation.
func NewFromSource(src source) *Exporter {
	return &Exporter{source: src}
}

// Handler serves Render.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the exposition text, or "" when the Controller was built
// without metrics.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}
	o := e.source.Observe()
	if !o.MetricsEnabled {
		return ""
	}

	var w writer
	w.Grow(8192)

	for _, c := range internaldefs.Counters {
		w.header(c.Name, c.Help, "counter")
		w.sample(c.Name, "", "", o.Metrics.Counters[c.ID])
	}
	for _, r := range internaldefs.Totals {
		w.header(r.Name, r.Help, "counter")
		w.sample(r.Name, "", "", uint64(r.Value(o)))
	}
	for _, r := range internaldefs.Gauges {
		w.header(r.Name, r.Help, "gauge")
		w.sample(r.Name, "", "", uint64(r.Value(o)))
	}

	w.header(internaldefs.StateName, internaldefs.StateHelp, "gauge")
	for _, s := range relayauth.States {
		w.sample(internaldefs.StateName, internaldefs.StateLabel, s.String(), uint64(internaldefs.StateValue(s, o.State)))
	}

	buckets := internaldefs.LatencyBuckets(o.Metrics.Histograms[relayauth.MetricBackendLatency])
	name := internaldefs.LatencyName
	w.header(name, internaldefs.LatencyHelp, "histogram")
	for _, b := range buckets {
		w.sample(name+"_bucket", internaldefs.LatencyLabel, b.LE, b.Count)
	}
	// Only bucket counts are recorded, so the sum is reported as 0.
	w.sample(name+"_sum", "", "", 0)
	w.sample(name+"_count", "", "", buckets[len(buckets)-1].Count)

	return w.String()
}

type writer struct {
	strings.Builder
}

func (w *writer) header(name, help, kind string) {
	help = strings.ReplaceAll(help, `\`, `\\`)
	help = strings.ReplaceAll(help, "\n", `\n`)
	w.WriteString("# HELP " + name + " " + help + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *writer) sample(name, label, value string, v uint64) {
	w.WriteString(name)
	if label != "" {
		w.WriteString("{" + label + "=" + strconv.Quote(value) + "}")
	}
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(v, 10))
	w.WriteByte('\n')
}
