// Package internaldefs names what the Prometheus and OpenTelemetry exporters
// publish from a [relayauth.Observation], so both expose the same series.
package internaldefs
