// Package logger provides structured logging setup and context propagation
// for the application. All components log through log/slog with a JSON
// handler configured from the server config.
package logger
