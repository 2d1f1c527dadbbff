package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Exporter renders engine counters, delivery losses and the session latency histogram
// in Prometheus text exposition format.
type Exporter struct {
	source internaldefs.Source
}

// New reads from engine on every scrape.
func New(engine *goGate.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource reads from any snapshot source.
func NewFromSource(source internaldefs.Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the scrape endpoint.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = e.Write(w)
	})
}

// Render returns the exposition text for the current snapshot.
func (e *Exporter) Render() string {
	var b strings.Builder
	_ = e.Write(&b)
	return b.String()
}

// Write streams the exposition text to w.
func (e *Exporter) Write(w io.Writer) error {
	if e == nil || e.source == nil {
		return nil
	}
	tw := textWriter{w: bufio.NewWriter(w)}
	for _, s := range internaldefs.Collect(e.source) {
		switch s.Kind {
		case internaldefs.KindCounter:
			tw.header(s.Name, s.Help, "counter")
			tw.sample(s.Name, "", s.Value)
		case internaldefs.KindHistogram:
			tw.header(s.Name, s.Help, "histogram")
			for i, le := range internaldefs.HistogramBounds {
				tw.sample(s.Name+"_bucket", le, s.Buckets[i])
			}
			tw.sample(s.Name+"_count", "", s.Buckets[len(s.Buckets)-1])
		}
	}
	return tw.w.Flush()
}

// textWriter emits exposition lines. Write errors surface from Flush.
type textWriter struct {
	w *bufio.Writer
}

func (t textWriter) header(name, help, typ string) {
	t.w.WriteString("# HELP ")
	t.w.WriteString(name)
	t.w.WriteByte(' ')
	t.w.WriteString(escapeHelp(help))
	t.w.WriteString("\n# TYPE ")
	t.w.WriteString(name)
	t.w.WriteByte(' ')
	t.w.WriteString(typ)
	t.w.WriteByte('\n')
}

func (t textWriter) sample(name, le string, value uint64) {
	t.w.WriteString(name)
	if le != "" {
		t.w.WriteString(`{le="`)
		t.w.WriteString(le)
		t.w.WriteString(`"}`)
	}
	t.w.WriteByte(' ')
	t.w.WriteString(strconv.FormatUint(value, 10))
	t.w.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
