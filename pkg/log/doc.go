/*
Package log provides structured logging for the EcoWatt agent using zerolog.

It wraps zerolog with a single package-level Logger, a small Level enum, and
component-scoped child-logger factories so every task on the device tags its
output consistently without threading a logger through every call.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("agent starting")

	pollLog := log.WithComponent("polling").With().Str("device_id", id).Logger()
	pollLog.Debug().Int("registers", len(sel)).Msg("poll tick")

Component loggers (WithComponent, WithDeviceID, WithTaskID) return a plain
zerolog.Logger carrying the relevant field, so callers compose additional
context with the normal zerolog builder chain.

# Levels

Debug is for development tracing, Info is the production default, Warn marks
conditions worth operator attention (a deadline miss, a network-related fault
recovery), and Error marks operations that failed outright (envelope wrap
failure, firmware hash mismatch). Fatal exits the process and is reserved for
startup failures before the task supervisor has started — once running, the
agent prefers a watchdog reboot over a panic.
*/
package log
