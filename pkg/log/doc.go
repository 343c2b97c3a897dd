/*
Package log provides structured logging for the object store engine using
zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. Every package logs through
log.WithComponent("txn"), log.WithComponent("commit"), and so on, so a
single log stream can be filtered by subsystem. All logs include
timestamps and support filtering by severity level.

Fatal-level events (via Logger.Fatal()) os.Exit after logging. The
transaction engine does not use them: NoSpace and other fatal
classifications during transaction apply abort the transaction with
nothing of it committed and return the error to the submitter; the
process keeps running.
*/
package log
