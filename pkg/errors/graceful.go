// Package errors carries startup failures from anywhere in the wiring code
// to a single exit point in main, so every fatal path logs before the
// process decides its exit code.
package errors

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hatomail/hato/logger"
)

// GracefulError wraps a failure with the operation that hit it.
type GracefulError struct {
	Operation string
	Err       error
}

func (g *GracefulError) Error() string {
	return fmt.Sprintf("operation '%s' failed: %v", g.Operation, g.Err)
}

func (g *GracefulError) Unwrap() error {
	return g.Err
}

// ErrorHandler records fatal startup errors and hands main an exit code.
// Reporting methods never block; the first reported error wins.
type ErrorHandler struct {
	exitChannel chan int
	logger      *log.Logger
}

// NewErrorHandler logs to stderr directly because fatal errors can occur
// before the structured logger is configured.
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		exitChannel: make(chan int, 1),
		logger:      log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
	}
}

// FatalError reports a failed operation and queues a non-zero exit.
func (eh *ErrorHandler) FatalError(operation string, err error) {
	eh.logger.Printf("FATAL: %v", &GracefulError{Operation: operation, Err: err})
	eh.queueExit()
}

// ConfigError reports a configuration file that could not be loaded.
func (eh *ErrorHandler) ConfigError(configPath string, err error) {
	if os.IsNotExist(err) {
		eh.logger.Printf("ERROR: configuration file '%s' not found: %v", configPath, err)
	} else {
		eh.logger.Printf("ERROR: failed to parse configuration file '%s': %v", configPath, err)
	}
	eh.queueExit()
}

// ValidationError reports a configuration value that failed validation.
func (eh *ErrorHandler) ValidationError(field string, err error) {
	eh.logger.Printf("ERROR: invalid configuration - %s: %v", field, err)
	eh.queueExit()
}

// WaitForExit blocks until an error has been reported and returns the
// process exit code.
func (eh *ErrorHandler) WaitForExit() int {
	return <-eh.exitChannel
}

// Shutdown distinguishes a signal-driven stop from an unexpected one in the
// shutdown log line.
func (eh *ErrorHandler) Shutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		logger.Info("Graceful shutdown initiated")
	default:
		logger.Warn("Unexpected shutdown")
	}
}

func (eh *ErrorHandler) queueExit() {
	select {
	case eh.exitChannel <- 1:
	default:
	}
}
