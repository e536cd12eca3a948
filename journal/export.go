package journal

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// TimestampFormat is the layout used by exported records.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatEntry renders one record as "timestamp [KIND] message".
func FormatEntry(e Entry) string {
	return fmt.Sprintf("%s [%s] %s", e.Timestamp.UTC().Format(TimestampFormat), e.Kind, e.Message)
}

// Export writes the log oldest-first, one record per line.
func (l *Log) Export(w io.Writer) error {
	return WriteEntries(w, l.Snapshot())
}

// ExportText is Export into a string.
func (l *Log) ExportText() string {
	var b strings.Builder
	_ = l.Export(&b)
	return b.String()
}

// WriteEntries writes newest-first entries (as returned by Snapshot) in
// chronological order.
func WriteEntries(w io.Writer, newestFirst []Entry) error {
	bw := bufio.NewWriter(w)
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if _, err := bw.WriteString(FormatEntry(newestFirst[i])); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ExportFilename is the suggested name for a downloaded export.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("activity-log-%s.txt", now.UTC().Format("20060102-150405"))
}
