package sink

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"

	"github.com/web3tea/binlog-sentinel/capturer"
)

// ConsoleSink implements the Sink interface to output events to the console in a pretty table format
type ConsoleSink struct {
	out io.Writer
	// whether to use colored output
	colorEnabled bool
	// unified table style
	tableStyle table.Style
	// max column width for truncation
	maxColumnWidth int
	// how to handle binary data
	binaryFormat string // "hex", "base64", or "escaped"
}

// ConsoleSinkOption defines functional options for ConsoleSink
type ConsoleSinkOption func(*ConsoleSink)

// WithColorOutput enables or disables colored output
func WithColorOutput(enabled bool) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		s.colorEnabled = enabled
	}
}

// WithMaxColumnWidth sets the maximum column width for truncation
func WithMaxColumnWidth(width int) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		if width > 3 {
			s.maxColumnWidth = width
		}
	}
}

// WithBinaryFormat sets the format for binary data display
// Valid values: "hex", "base64", "escaped"
func WithBinaryFormat(format string) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		s.binaryFormat = format
	}
}

// WithConsoleOutput redirects the rendered tables, stdout by default
func WithConsoleOutput(w io.Writer) ConsoleSinkOption {
	return func(s *ConsoleSink) {
		s.out = w
	}
}

// NewConsoleSink creates a new console sink
func NewConsoleSink(options ...ConsoleSinkOption) *ConsoleSink {
	customStyle := table.Style{
		Name: "CDC-Custom",
		Box: table.BoxStyle{
			BottomLeft:       "└",
			BottomRight:      "┘",
			BottomSeparator:  "┴",
			Left:             "│",
			LeftSeparator:    "├",
			MiddleHorizontal: "─",
			MiddleSeparator:  "┼",
			MiddleVertical:   "│",
			PaddingLeft:      " ",
			PaddingRight:     " ",
			Right:            "│",
			RightSeparator:   "┤",
			TopLeft:          "┌",
			TopRight:         "┐",
			TopSeparator:     "┬",
			UnfinishedRow:    "...",
		},
		Options: table.Options{
			DrawBorder:      true,
			SeparateColumns: true,
			SeparateFooter:  true,
			SeparateHeader:  true,
			SeparateRows:    false,
		},
		Title: table.TitleOptions{
			Align:  text.AlignCenter,
			Colors: text.Colors{text.FgHiWhite, text.Bold},
		},
		Color: table.ColorOptions{
			Header: text.Colors{text.FgHiWhite, text.Bold},
			Row:    text.Colors{},
			Footer: text.Colors{text.FgHiWhite, text.Bold},
		},
	}

	sink := &ConsoleSink{
		out:            os.Stdout,
		colorEnabled:   true,
		tableStyle:     customStyle,
		maxColumnWidth: 80,
		binaryFormat:   "hex",
	}

	for _, option := range options {
		option(sink)
	}

	if !sink.colorEnabled {
		sink.tableStyle.Title.Colors = nil
		sink.tableStyle.Color = table.ColorOptions{}
	}

	return sink
}

func (s *ConsoleSink) Init(ctx context.Context) error {
	return nil
}

// Write outputs events to the console
func (s *ConsoleSink) Write(ctx context.Context, events []*capturer.Event) error {
	for _, event := range events {
		if _, err := fmt.Fprint(s.out, s.renderEvent(event)); err != nil {
			return fmt.Errorf("write event %s: %w", event.ID, err)
		}
	}
	return nil
}

type palette struct {
	op        func(a ...interface{}) string
	added     func(a ...interface{}) string
	removed   func(a ...interface{}) string
	modified  func(a ...interface{}) string
	unchanged func(a ...interface{}) string
}

func (s *ConsoleSink) palette(op capturer.OperationType) palette {
	if !s.colorEnabled {
		return palette{fmt.Sprint, fmt.Sprint, fmt.Sprint, fmt.Sprint, fmt.Sprint}
	}
	p := palette{
		op:        fmt.Sprint,
		added:     color.New(color.FgGreen).SprintFunc(),
		removed:   color.New(color.FgRed).SprintFunc(),
		modified:  color.New(color.FgYellow).SprintFunc(),
		unchanged: color.New(color.FgBlue).SprintFunc(),
	}
	switch op {
	case capturer.Insert:
		p.op = color.New(color.FgGreen, color.Bold).SprintFunc()
	case capturer.Update:
		p.op = color.New(color.FgYellow, color.Bold).SprintFunc()
	case capturer.Delete:
		p.op = color.New(color.FgRed, color.Bold).SprintFunc()
	}
	return p
}

// renderEvent renders an event as one table: a summary followed by a data
// table per changed row
func (s *ConsoleSink) renderEvent(event *capturer.Event) string {
	colors := s.palette(event.Type)

	eventTable := table.NewWriter()

	summaryTable := table.NewWriter()
	summaryTable.AppendRows([]table.Row{
		{"Event ID", event.ID},
		{"Operation", colors.op(string(event.Type))},
		{"Table", event.QualifiedName()},
		{"Timestamp", event.Timestamp.Format(time.RFC3339)},
		{"Position", event.Position.String()},
		{"Rows", len(event.Rows)},
	})
	summaryTable.SetStyle(s.tableStyle)
	summaryTable.Style().Options.DrawBorder = false
	summaryTable.Style().Options.SeparateRows = false

	eventTable.AppendRow(table.Row{summaryTable.Render()})

	for i, row := range event.Rows {
		var title string
		var dataTable table.Writer

		switch event.Type {
		case capturer.Insert:
			title = "Inserted Data"
			dataTable = s.createValuesTable(row.After, colors.added)
		case capturer.Delete:
			title = "Deleted Data"
			dataTable = s.createValuesTable(row.Before, colors.removed)
		case capturer.Update:
			title = "Changed Data"
			dataTable = s.createChangedDataTable(row.Before, row.After, colors)
		default:
			continue
		}
		if len(event.Rows) > 1 {
			title = fmt.Sprintf("%s (%d/%d)", title, i+1, len(event.Rows))
		}

		eventTable.AppendRow(table.Row{""})
		eventTable.AppendRow(table.Row{text.Bold.Sprint(title)})
		eventTable.AppendRow(table.Row{dataTable.Render()})
	}

	eventTable.SetStyle(s.tableStyle)

	var titlePrefix string
	switch event.Type {
	case capturer.Insert:
		titlePrefix = "INSERT INTO"
	case capturer.Update:
		titlePrefix = "UPDATE"
	case capturer.Delete:
		titlePrefix = "DELETE FROM"
	default:
		titlePrefix = string(event.Type)
	}
	eventTable.SetTitle(fmt.Sprintf("%s %s", titlePrefix, event.QualifiedName()))

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")
	sb.WriteString(eventTable.Render())
	sb.WriteString("\n\n")
	return sb.String()
}

// createValuesTable creates a column/value table for inserted or deleted rows
func (s *ConsoleSink) createValuesTable(data map[string]any, valueColor func(a ...interface{}) string) table.Writer {
	dataTable := table.NewWriter()
	dataTable.AppendHeader(table.Row{"Column", "Value"})

	for _, k := range getSortedKeys(data) {
		dataTable.AppendRow(table.Row{
			k,
			valueColor(s.formatValue(data[k])),
		})
	}

	dataTable.SetStyle(s.tableStyle)
	return dataTable
}

// createChangedDataTable creates a table showing before/after changes
func (s *ConsoleSink) createChangedDataTable(before, after map[string]any, colors palette) table.Writer {
	dataTable := table.NewWriter()
	dataTable.AppendHeader(table.Row{"Column", "Before", "After", "Change"})

	keys := lo.Uniq(append(lo.Keys(before), lo.Keys(after)...))
	sort.Strings(keys)

	hasChanges := false
	for _, k := range keys {
		beforeVal, beforeExists := before[k]
		afterVal, afterExists := after[k]

		var beforeStr, afterStr, changeStr string
		switch {
		case !beforeExists:
			afterStr = colors.added(s.formatValue(afterVal))
			changeStr = colors.added("ADDED")
			hasChanges = true
		case !afterExists:
			beforeStr = colors.removed(s.formatValue(beforeVal))
			changeStr = colors.removed("REMOVED")
			hasChanges = true
		case !reflect.DeepEqual(beforeVal, afterVal):
			beforeStr = colors.removed(s.formatValue(beforeVal))
			afterStr = colors.added(s.formatValue(afterVal))
			changeStr = colors.modified("MODIFIED")
			hasChanges = true
		default:
			beforeStr = colors.unchanged(s.formatValue(beforeVal))
			afterStr = colors.unchanged(s.formatValue(afterVal))
			changeStr = colors.unchanged("UNCHANGED")
		}

		dataTable.AppendRow(table.Row{k, beforeStr, afterStr, changeStr})
	}

	// binlog_row_image=MINIMAL or a no-op update
	if !hasChanges && len(keys) > 0 {
		dataTable = table.NewWriter()
		dataTable.AppendRow(table.Row{"No changes detected in column values"})
	}

	dataTable.SetStyle(s.tableStyle)
	return dataTable
}

// formatValue formats a value for display, handling truncation, binary data, and nil values
func (s *ConsoleSink) formatValue(val any) string {
	if val == nil {
		return "NULL"
	}

	if b, ok := val.([]byte); ok {
		return s.formatByteArray(b)
	}

	switch reflect.ValueOf(val).Kind() {
	case reflect.Slice, reflect.String, reflect.Map, reflect.Struct:
		return s.truncateString(fmt.Sprintf("%v", val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatByteArray formats a byte array according to the configured format
func (s *ConsoleSink) formatByteArray(data []byte) string {
	if len(data) == 0 {
		return "[]"
	}

	var result string
	switch s.binaryFormat {
	case "base64":
		result = "base64:" + base64.StdEncoding.EncodeToString(data)
	case "escaped":
		if isTextual(data) {
			result = formatEscapedString(data)
		} else {
			result = "0x" + hex.EncodeToString(data)
		}
	default:
		result = "0x" + hex.EncodeToString(data)
	}

	return s.truncateString(result)
}

// truncateString truncates a string if it's longer than maxColumnWidth
func (s *ConsoleSink) truncateString(str string) string {
	if len(str) <= s.maxColumnWidth {
		return str
	}
	return str[:s.maxColumnWidth-3] + "..."
}

// isTextual checks if a byte array is likely to be textual data
func isTextual(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// formatEscapedString formats a byte array as a string with special characters escaped
func formatEscapedString(data []byte) string {
	var result strings.Builder
	result.WriteRune('"')

	for _, r := range string(data) {
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		case '\\':
			result.WriteString("\\\\")
		case '"':
			result.WriteString("\\\"")
		default:
			if unicode.IsPrint(r) {
				result.WriteRune(r)
			} else {
				result.WriteString(fmt.Sprintf("\\u%04x", r))
			}
		}
	}

	result.WriteRune('"')
	return result.String()
}

// getSortedKeys returns sorted keys from a map for consistent output
func getSortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// Flush implements the Sink interface, no buffering for console output
func (s *ConsoleSink) Flush(ctx context.Context) error {
	return nil
}

// Close implements the Sink interface
func (s *ConsoleSink) Close() error {
	return nil
}

// Type returns the type of this sink
func (s *ConsoleSink) Type() string {
	return "console"
}

var _ Sink = (*ConsoleSink)(nil)
