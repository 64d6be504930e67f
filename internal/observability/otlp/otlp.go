// Package otlp holds the exporter settings shared by the trace and metric pipelines.
package otlp

import (
	"fmt"
	"strings"
)

type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

// ParseProtocol accepts the OTEL_EXPORTER_OTLP_PROTOCOL spellings. Empty means gRPC.
func ParseProtocol(raw string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "grpc", "grpc/protobuf":
		return ProtocolGRPC, nil
	case "http", "http/protobuf":
		return ProtocolHTTP, nil
	default:
		return "", fmt.Errorf("otlp: unsupported protocol %q", raw)
	}
}

// Target is where signals are shipped.
type Target struct {
	Endpoint string
	Protocol Protocol
}

func NewTarget(endpoint, protocol string) (Target, error) {
	p, err := ParseProtocol(protocol)
	if err != nil {
		return Target{}, err
	}
	return Target{Endpoint: strings.TrimSpace(endpoint), Protocol: p}, nil
}
