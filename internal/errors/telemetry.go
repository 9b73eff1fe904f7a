package errors

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	telemetryMu      sync.RWMutex
	telemetryEnabled bool
)

// EnableTelemetry initializes Sentry error reporting. A no-op when dsn is empty,
// so callers can pass the raw environment value straight through.
func EnableTelemetry(dsn, release string) error {
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return err
	}

	telemetryMu.Lock()
	telemetryEnabled = true
	telemetryMu.Unlock()
	return nil
}

// FlushTelemetry drains buffered events before process exit.
func FlushTelemetry(timeout time.Duration) {
	telemetryMu.RLock()
	enabled := telemetryEnabled
	telemetryMu.RUnlock()
	if enabled {
		sentry.Flush(timeout)
	}
}

// reportToTelemetry sends an enhanced error to Sentry with component and
// category tags. Called from ErrorBuilder.Build.
func reportToTelemetry(ee *EnhancedError) {
	telemetryMu.RLock()
	enabled := telemetryEnabled
	telemetryMu.RUnlock()
	if !enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if len(ee.Context) > 0 {
			scope.SetContext("error_context", ee.Context)
		}
		sentry.CaptureException(ee.Err)
	})
}
