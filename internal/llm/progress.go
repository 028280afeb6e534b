package llm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProgressEvent represents a single progress update during generation.
type ProgressEvent struct {
	Type    string `json:"type"`              // "step", "info", "stats", "done", "error"
	Step    int    `json:"step,omitempty"`    // current stage
	MaxStep int    `json:"max,omitempty"`     // number of stages
	Kind    string `json:"kind,omitempty"`    // questions, tests or plan
	Message string `json:"message,omitempty"` // human-readable message
	ModelMs int    `json:"model_ms,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
	Chars   int    `json:"chars,omitempty"`
	Output  any    `json:"output,omitempty"` // final record (for "done" type)
}

// ProgressEmitter receives progress events during generation.
type ProgressEmitter interface {
	Emit(event ProgressEvent)
}

// Emit sends ev to e when e is not nil.
func Emit(e ProgressEmitter, ev ProgressEvent) {
	if e != nil {
		e.Emit(ev)
	}
}

// TextEmitter formats progress events as human-readable text for CLI output.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev ProgressEvent) {
	switch ev.Type {
	case "step":
		fmt.Fprintf(e.W, "[step %d/%d] %s\n", ev.Step, ev.MaxStep, ev.Message)
	case "stats":
		fmt.Fprintf(e.W, "[step %d/%d]   %s\n", ev.Step, ev.MaxStep, formatStats(ev))
	case "info":
		fmt.Fprintf(e.W, "  %s\n", ev.Message)
	case "error":
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}

// formatStats renders model time, token count and output size.
func formatStats(ev ProgressEvent) string {
	var parts []string

	if ev.ModelMs > 0 || ev.Tokens > 0 {
		model := "model"
		if ev.ModelMs > 0 {
			model += " " + formatDuration(ev.ModelMs)
		}
		if ev.Tokens > 0 {
			model += ", " + formatNumber(ev.Tokens) + " tok"
		}
		parts = append(parts, model)
	}
	if ev.Chars > 0 {
		parts = append(parts, "result "+formatNumber(ev.Chars)+" chars")
	}

	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, " · ")
}

func formatDuration(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func formatNumber(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
