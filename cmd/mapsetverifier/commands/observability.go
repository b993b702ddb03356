package commands

import (
	"fmt"
	"os"

	"github.com/mapset-verifier/server/pkg/config"
	"github.com/mapset-verifier/server/pkg/observability"
	"github.com/mapset-verifier/server/pkg/version"
)

// initObservability builds telemetry providers from the loaded configuration.
// The standard OTEL_EXPORTER_OTLP_* variables fill in an unset endpoint.
func initObservability(cfg *config.Config, mode observability.AppMode) (observability.Providers, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Providers{}, fmt.Errorf("logging: %w", err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.Mode = mode
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == "json"
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.Prometheus = cfg.Observability.Prometheus
	obsCfg.DebugTrace = cfg.Observability.DebugTrace
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.TraceVerbose = cfg.Observability.TraceVerbose

	if obsCfg.OTLPEndpoint == "" {
		obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
		obsCfg.OTLPInsecure = obsCfg.OTLPInsecure || os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}
