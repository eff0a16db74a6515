// Package logging provides the small structured-logging facade used
// across codecoder's components (spec.md §2, SPEC_FULL.md §2), following
// the teacher's core.Logger shape: a Logger interface with component
// awareness and a JSON/text ProductionLogger, trimmed to the handful of
// methods actually called by this repo's services.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger is the minimal logging interface every component accepts via
// functional options.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component tag that appears
// in every structured log line, letting operators filter by component
// ("hitl", "gateway.proxy", "hand", ...).
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Used as the zero-value default so
// components never need a nil check before logging.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}

func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

// LoggingConfig controls the ProductionLogger's verbosity and wire
// format; it is loaded from the top-level config file (spec.md §6.5).
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
	Output string // "stdout" or "stderr"
}

// DevelopmentConfig toggles developer-friendly behavior that production
// deployments leave off.
type DevelopmentConfig struct {
	DebugLogging bool
}

// ProductionLogger writes structured (JSON) or human-readable (text)
// log lines, tagging each with the owning service and, once narrowed via
// WithComponent, a component name.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer
}

// NewProductionLogger builds a Logger from LoggingConfig/DevelopmentConfig
// for serviceName, matching the teacher's NewProductionLogger convention.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}
	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
}

// WithComponent returns a logger tagged with component, sharing the
// parent's configuration and output.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:       p.level,
		debug:       p.debug,
		serviceName: p.serviceName,
		component:   component,
		format:      p.format,
		output:      p.output,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}

func (p *ProductionLogger) InfoWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}

func (p *ProductionLogger) ErrorWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}

func (p *ProductionLogger) WarnWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) DebugWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}) {
	component := p.component
	if component == "" {
		component = p.serviceName
	}

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var fieldStr strings.Builder
	for k, v := range fields {
		fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n",
		time.Now().Format(time.RFC3339), level, component, msg, fieldStr.String())
}
