// Package testhelpers holds helpers shared by the Ginkgo suites.
package testhelpers

import (
	"fmt"
	"strings"

	"github.com/onsi/ginkgo/v2"

	"github.com/grafana/treeforge/log"
)

// ANSI colors for GinkgoWriter output.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorGray   = "\033[90m"
)

// TestLogger implements log.Logger on top of GinkgoWriter, so output only shows
// for failing specs or with -v.
type TestLogger struct{}

var _ log.Logger = (*TestLogger)(nil)

// NewTestLogger creates a new TestLogger for Ginkgo tests.
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

// Debug implements log.Logger.
func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.log(ColorGray, "DEBUG", msg, keysAndValues)
}

// Info implements log.Logger.
func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.log(ColorBlue, "INFO", msg, keysAndValues)
}

// Warn implements log.Logger.
func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.log(ColorYellow, "WARN", msg, keysAndValues)
}

// Error implements log.Logger.
func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.log(ColorRed, "ERROR", msg, keysAndValues)
}

func (l *TestLogger) log(color, level, msg string, args []any) {
	formatted := msg
	if len(args) > 0 {
		pairs := make([]string, 0, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			pairs = append(pairs, fmt.Sprintf("%v=%v", args[i], args[i+1]))
		}
		formatted = fmt.Sprintf("%s (%s)", msg, strings.Join(pairs, ", "))
	}

	ginkgo.GinkgoWriter.Printf("%s[%s] %s%s\n", color, level, formatted, ColorReset)
}
