// Package logx is cartellino's structured logging layer.
//
// A thin value type (logx.Logger) sits on top of zerolog:
//   - console output keeps a short timestamp and file:line caller
//   - the optional file sink writes JSON lines
//   - the optional Telegram sink forwards warnings to a log chat, rate limited
//
// Loggers created from a Service follow Service.Apply, so a config reload
// changes level and sinks without rebuilding component loggers.
package logx
