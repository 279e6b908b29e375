// Package logger builds the slog.Logger shared by the gateway and its
// components. Production environments get JSON records, everything else the
// text handler.
package logger
