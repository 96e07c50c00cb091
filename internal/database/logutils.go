package database

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// DefaultTailLines is how much of the log a fatal error dumps.
const DefaultTailLines = 200

// PrintRecentLogTail prints the last lines of the log file to stderr. LOG_PATH
// overrides logPath and LOG_TAIL_LINES overrides lines. It is invoked when a
// critical error happens so the pipeline can see verbose context.
func PrintRecentLogTail(logPath string, lines int) {
	if envPath := os.Getenv("LOG_PATH"); envPath != "" {
		logPath = envPath
	}
	if envLines := os.Getenv("LOG_TAIL_LINES"); envLines != "" {
		if v, err := strconv.Atoi(envLines); err == nil && v > 0 {
			lines = v
		}
	}

	if err := WriteRecentLogTail(os.Stderr, logPath, lines); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}

// WriteRecentLogTail writes the last `lines` lines of logPath to w between
// BEGIN/END markers.
func WriteRecentLogTail(w io.Writer, logPath string, lines int) error {
	if lines <= 0 {
		lines = DefaultTailLines
	}

	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	defer f.Close()

	// Ring buffer of the last `lines` lines; log files can be large.
	tail := make([]string, 0, lines)
	next := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(tail) < lines {
			tail = append(tail, scanner.Text())
			continue
		}
		tail[next] = scanner.Text()
		next = (next + 1) % lines
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file %s: %w", logPath, err)
	}

	fmt.Fprintf(w, "--- BEGIN LOG TAIL (%s) last %d lines ---\n", logPath, lines)
	for i := range tail {
		fmt.Fprintln(w, tail[(next+i)%len(tail)])
	}
	fmt.Fprintf(w, "---  END LOG TAIL (%s) ---\n", logPath)
	return nil
}
