package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger writes human-readable lines for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger writes JSON records with correlation IDs for serve.
	ServerLogger *logging.Logger
)

// InitCLILogger sets CLILogger. verbose lowers the level to debug.
func InitCLILogger(serviceName string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("cli logger: %w", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
	return nil
}

// InitServerLogger sets ServerLogger from the logging config. profile
// SIMPLE keeps console text; anything else emits structured JSON.
func InitServerLogger(serviceName, level, profile, namespace string) error {
	logger, err := logging.New(serverLoggerConfig(serviceName, level, profile, namespace))
	if err != nil {
		return fmt.Errorf("server logger: %w", err)
	}
	ServerLogger = logger
	return nil
}

func serverLoggerConfig(serviceName, level, profile, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace != "" {
		static["namespace"] = namespace
	}

	cfg := &logging.LoggerConfig{
		Profile:          logging.ProfileStructured,
		DefaultLevel:     severity(level),
		Service:          serviceName,
		Environment:      "production",
		StaticFields:     static,
		EnableCaller:     true,
		EnableStacktrace: true,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{{
			Type:    "console",
			Format:  "json",
			Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
		}},
	}

	if strings.EqualFold(strings.TrimSpace(profile), "simple") {
		cfg.Profile = logging.ProfileSimple
		cfg.Middleware = nil
		cfg.EnableStacktrace = false
		cfg.Sinks[0].Format = "console"
	}
	return cfg
}

// severity maps config levels (trace..error) to logger severities.
func severity(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger returns ServerLogger under serve and CLILogger otherwise. It may
// be nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}
