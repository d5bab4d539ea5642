package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/web3tea/binlog-sentinel/capturer"
)

// StdoutSink prints events as JSON lines, or as readable blocks when
// prettyPrint is set.
type StdoutSink struct {
	prettyPrint bool
	w           *bufio.Writer
}

func NewStdoutSink(prettyPrint bool) *StdoutSink {
	return newStdoutSink(os.Stdout, prettyPrint)
}

func newStdoutSink(out io.Writer, prettyPrint bool) *StdoutSink {
	return &StdoutSink{
		prettyPrint: prettyPrint,
		w:           bufio.NewWriter(out),
	}
}

func (s *StdoutSink) Init(ctx context.Context) error {
	return nil
}

func (s *StdoutSink) Close() error {
	return s.w.Flush()
}

func (s *StdoutSink) Flush(ctx context.Context) error {
	return s.w.Flush()
}

func (s *StdoutSink) Type() string {
	return "stdout"
}

func (s *StdoutSink) Write(ctx context.Context, events []*capturer.Event) error {
	if len(events) == 0 {
		return nil
	}

	if s.prettyPrint {
		if _, err := s.w.WriteString(s.buildPrettyOutput(events)); err != nil {
			return err
		}
		return s.w.Flush()
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.ID, err)
		}
		s.w.Write(data)
		s.w.WriteByte('\n')
	}
	return s.w.Flush()
}

func (s *StdoutSink) buildPrettyOutput(events []*capturer.Event) string {
	var sb strings.Builder

	for i, event := range events {
		if i > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString("----------------------------------------\n")
		sb.WriteString(fmt.Sprintf("Event ID: %s\n", event.ID))
		sb.WriteString(fmt.Sprintf("Operation: %s\n", event.Type))
		sb.WriteString(fmt.Sprintf("Table: %s\n", event.QualifiedName()))
		sb.WriteString(fmt.Sprintf("Timestamp: %s\n", event.Timestamp.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("Position: %s\n", event.Position))

		for j, row := range event.Rows {
			sb.WriteString(fmt.Sprintf("Row %d:\n", j+1))
			if row.Before != nil {
				dataBytes, _ := json.MarshalIndent(row.Before, "  ", "  ")
				sb.WriteString("  Before: ")
				sb.WriteString(string(dataBytes))
				sb.WriteString("\n")
			}
			if row.After != nil {
				dataBytes, _ := json.MarshalIndent(row.After, "  ", "  ")
				sb.WriteString("  After: ")
				sb.WriteString(string(dataBytes))
				sb.WriteString("\n")
			}
		}

		sb.WriteString("----------------------------------------\n")
	}

	return sb.String()
}

var _ Sink = (*StdoutSink)(nil)
