// Package output renders command results as tables, JSON or YAML.
//
// Results go to the printer's output writer. Status lines (Success,
// Warning, Error) go to a separate writer, stderr by default, so that
// commands piping frames to stdout keep the stream clean.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a --output flag value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer writes results and status lines.
type Printer struct {
	out    io.Writer
	status io.Writer
	format Format
	color  bool
}

// NewPrinter creates a printer writing results to out and status lines to
// status.
func NewPrinter(out, status io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, status: status, format: format, color: color}
}

// DefaultPrinter writes tables to stdout and status lines to stderr.
func DefaultPrinter() *Printer {
	return NewPrinter(os.Stdout, os.Stderr, FormatTable, true)
}

func (p *Printer) Format() Format {
	return p.format
}

// Print renders data in the printer's format. In table format, data must
// implement TableRenderer or it is printed as JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Success prints a green status line.
func (p *Printer) Success(msg string) { p.statusLine("32", msg) }

// Warning prints a yellow status line.
func (p *Printer) Warning(msg string) { p.statusLine("33", msg) }

// Error prints a red status line.
func (p *Printer) Error(msg string) { p.statusLine("31", msg) }

func (p *Printer) statusLine(color, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.status, "\033[%sm%s\033[0m\n", color, msg)
		return
	}
	_, _ = fmt.Fprintln(p.status, msg)
}
