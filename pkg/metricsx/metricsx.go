// Package metricsx extends github.com/VictoriaMetrics/metrics.
package metricsx

import "strings"

// Format builds a metric name with labels, e.g. Format("reqs_total", "method",
// "GET") returns `reqs_total{method="GET"}`.
func Format(base string, kv ...string) string {
	return formatName(base, "", kv...)
}

func formatName(base, arg string, args ...string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('{')
	if arg != "" {
		b.WriteString(arg)
	}
	for i := 1; i < len(args); i += 2 {
		if arg != "" || i > 1 {
			b.WriteByte(',')
		}
		b.WriteString(args[i-1])
		b.WriteString("=\"")
		b.WriteString(args[i])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
