// SPDX-License-Identifier: Apache-2.0

package migration

import "github.com/pterm/pterm"

// Logger reports progress of a migrator run. pkg/migrator stays silent by
// default (NewNoopLogger); the CLI layer supplies a pterm-backed Logger.
type Logger interface {
	LogRunStart(sourceIndex, targetIndex int)
	LogRunComplete(positionsProcessed int)
	LogPositionStart(position int64, sourceIndex, targetIndex int)
	LogPositionComplete(position int64, eventCount int)
	LogFinalizeStart()
	LogFinalizeComplete()

	Info(msg string, args ...any)
}

type pMigrationLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// NewLogger returns a pterm-backed Logger suitable for CLI use.
func NewLogger() Logger {
	return &pMigrationLogger{logger: pterm.DefaultLogger}
}

// NewNoopLogger returns a Logger that discards everything, the default
// for library callers that don't want console output.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *pMigrationLogger) LogRunStart(sourceIndex, targetIndex int) {
	l.logger.Info("starting migrator run", l.logger.Args("source_index", sourceIndex, "target_index", targetIndex))
}

func (l *pMigrationLogger) LogRunComplete(positionsProcessed int) {
	l.logger.Info("migrator run complete", l.logger.Args("positions_processed", positionsProcessed))
}

func (l *pMigrationLogger) LogPositionStart(position int64, sourceIndex, targetIndex int) {
	l.logger.Info("migrating position", l.logger.Args("position", position, "source_index", sourceIndex, "target_index", targetIndex))
}

func (l *pMigrationLogger) LogPositionComplete(position int64, eventCount int) {
	l.logger.Info("position migrated", l.logger.Args("position", position, "event_count", eventCount))
}

func (l *pMigrationLogger) LogFinalizeStart() {
	l.logger.Info("starting finalize")
}

func (l *pMigrationLogger) LogFinalizeComplete() {
	l.logger.Info("finalize complete")
}

func (l *pMigrationLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args))
}

func (l *noopLogger) LogRunStart(sourceIndex, targetIndex int)            {}
func (l *noopLogger) LogRunComplete(positionsProcessed int)               {}
func (l *noopLogger) LogPositionStart(position int64, source, target int) {}
func (l *noopLogger) LogPositionComplete(position int64, eventCount int)  {}
func (l *noopLogger) LogFinalizeStart()                                  {}
func (l *noopLogger) LogFinalizeComplete()                               {}
func (l *noopLogger) Info(msg string, args ...any)                       {}
