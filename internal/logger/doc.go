// Package logger wraps zap to offer:
//   - a global sugared logger with a console or JSON encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level and format parsing,
//   - convenience functions (Infof, WarnKV, ErrorKV, etc.).
//
// Every engine component accepts a context and extracts the logger from it,
// so scheduler, delivery and transport log lines carry their component name.
package logger
