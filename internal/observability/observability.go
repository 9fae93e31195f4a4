// Package observability wires process-wide structured logging. The slog
// default handler writes to stderr, never stdout: on stdio transport stdout
// carries the MCP protocol stream and must stay clean.
//
// When a telemetry exporter is configured, log records are additionally
// bridged to OpenTelemetry and shipped via OTLP.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Supported log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Supported telemetry exporters. Empty disables the bridge.
const (
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
	ExporterStdout   = "stdout"
)

const instrumentationName = "github.com/hllvc/toconline-mcp"

var (
	mu       sync.Mutex
	provider *sdklog.LoggerProvider
)

// Instrument installs the process-wide default logger. exporter selects the
// optional OTLP bridge; the empty string keeps logging local.
func Instrument(level slog.Level, format, exporter string) error {
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	case FormatText, "":
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	default:
		return fmt.Errorf("unsupported log format: %q", format)
	}

	if exporter != "" {
		otelProvider, otelHandler, err := newOTelBridge(context.Background(), level, exporter)
		if err != nil {
			return err
		}

		mu.Lock()
		provider = otelProvider
		mu.Unlock()

		handler = multiHandler{handler, otelHandler}
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Shutdown flushes and stops the telemetry pipeline, if one was started.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	p := provider
	provider = nil
	mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Shutdown(ctx)
}

// newOTelBridge builds a logger provider with the selected exporter and a
// severity filter matching the slog level, plus the slog handler bridging
// into it.
func newOTelBridge(ctx context.Context, level slog.Level, exporter string) (*sdklog.LoggerProvider, slog.Handler, error) {
	var (
		exp sdklog.Exporter
		err error
	)
	switch exporter {
	case ExporterOTLPGRPC:
		exp, err = otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		exp, err = otlploghttp.New(ctx)
	case ExporterStdout:
		// stderr, same reason the slog handler writes there.
		exp, err = stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	default:
		err = fmt.Errorf("unsupported telemetry exporter: %q", exporter)
	}
	if err != nil {
		return nil, nil, err
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exp), toSeverity(level))
	otelProvider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	handler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(otelProvider))

	return otelProvider, handler, nil
}

func toSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// multiHandler fans records out to every wrapped handler.
type multiHandler []slog.Handler

var _ slog.Handler = multiHandler{}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
