package report

import (
	"errors"
	"io"
)

// Writer renders a CrawlReport to its destination and returns the number
// of bytes written.
type Writer interface {
	Write(report *CrawlReport) (int, error)
}

// Tee renders one report through several writers, for example the full
// report into a file and a summary on the terminal.
type Tee []Writer

// Write runs every writer even when an earlier one fails, and returns the
// bytes written in total with the joined errors.
func (t Tee) Write(report *CrawlReport) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, w := range t {
		n, err := w.Write(report)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString shortens s to maxLen bytes, ending in "..." when cut.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
