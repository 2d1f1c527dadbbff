// Package internaldefs holds the metric names, help strings and histogram bounds
// shared by the Prometheus and OTel exporters. [Collect] is the single read path, so
// both exporters publish identical series from one engine snapshot.
//
// It performs no I/O and imports no exporter package.
package internaldefs
