// Package logx is a thin zerolog wrapper with live reconfiguration.
//
// It exposes a value-type Logger with slog-like field helpers and a
// Service that can swap sinks/levels at runtime (config hot reload).
package logx
