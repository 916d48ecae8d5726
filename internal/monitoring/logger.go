package monitoring

import (
	"fmt"
	"log"

	"go.uber.org/zap"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger or UseZap. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NewZapLogger builds a development (debug) or production zap logger.
func NewZapLogger(debug bool) (*zap.Logger, error) {
	var (
		zapLogger *zap.Logger
		err       error
	)
	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return nil, fmt.Errorf("can't initialize zap logger: %w", err)
	}
	return zapLogger, nil
}

// UseZap routes Logf through the sugared form of l. Passing nil restores
// log.Printf.
func UseZap(l *zap.Logger) {
	if l == nil {
		Logf = log.Printf
		return
	}
	Logf = l.Sugar().Infof
}
