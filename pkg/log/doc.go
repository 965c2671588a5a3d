/*
Package log provides structured logging for StrataDB using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

Initializing the Logger:

	import "github.com/strata-systems/strata/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	walLog := log.WithComponent("wal")
	walLog.Info().Str("mode", "standard").Msg("WAL opened")

	recoveryLog := log.WithComponent("recovery")
	recoveryLog.Info().Uint64("version", watermark).Msg("replay complete")

Components used across the engine: database, wal, checkpoint, recovery,
bundle, cli.
*/
package log
