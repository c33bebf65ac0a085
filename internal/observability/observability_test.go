package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	t.Cleanup(func() { CLILogger = nil })

	require.NoError(t, InitCLILogger("lumenhour", true))
	require.NotNil(t, CLILogger)
	CLILogger.Debug("cli logger ready", zap.String("place", "oia-castle"))
	assert.Same(t, CLILogger, Logger())
}

func TestInitServerLoggerPrefersServerLogger(t *testing.T) {
	t.Cleanup(func() {
		CLILogger = nil
		ServerLogger = nil
	})

	require.NoError(t, InitCLILogger("lumenhour", false))
	require.NoError(t, InitServerLogger("lumenhour", "debug", "STRUCTURED", "lumenhour"))
	require.NotNil(t, ServerLogger)
	ServerLogger.Info("server logger ready", zap.String("endpoint", "/api/v1/golden-hour"))
	assert.Same(t, ServerLogger, Logger())
}

func TestServerLoggerConfigProfiles(t *testing.T) {
	structured := serverLoggerConfig("lumenhour", "warn", "", "ns")
	assert.Equal(t, logging.ProfileStructured, structured.Profile)
	assert.Equal(t, "WARN", structured.DefaultLevel)
	assert.Equal(t, "json", structured.Sinks[0].Format)
	assert.Equal(t, "ns", structured.StaticFields["namespace"])
	require.Len(t, structured.Middleware, 1)

	simple := serverLoggerConfig("lumenhour", "info", "simple", "")
	assert.Equal(t, logging.ProfileSimple, simple.Profile)
	assert.Equal(t, "console", simple.Sinks[0].Format)
	assert.Empty(t, simple.Middleware)
	assert.Empty(t, simple.StaticFields)

	_, err := logging.New(simple)
	require.NoError(t, err)
}

func TestSeverity(t *testing.T) {
	for in, want := range map[string]string{
		"trace": "TRACE", "DEBUG": "DEBUG", " warning ": "WARN", "error": "ERROR", "": "INFO", "loud": "INFO",
	} {
		assert.Equal(t, want, severity(in), in)
	}
}

func TestPortOf(t *testing.T) {
	port, err := portOf("[::]:9464")
	require.NoError(t, err)
	assert.Equal(t, 9464, port)

	_, err = portOf("no-port")
	assert.Error(t, err)
}

func TestMetricsPortBeforeInit(t *testing.T) {
	if PrometheusExporter == nil {
		assert.Equal(t, 0, GetMetricsPort())
	}
}
