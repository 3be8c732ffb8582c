package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// Logf is the signature shared by every logging collaborator
type Logf func(category, format string, args ...any)

// ringSize is how many recent lines are kept in memory
const ringSize = 64

type line struct {
	category string
	text     string
}

var (
	file     *os.File
	mu       sync.Mutex
	ring     [ringSize]line
	ringNext int
	ringLen  int
	counters = make(map[string]int)
)

// Path returns the default log file, ~/.config/go-midiroute/debug.log
func Path() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "go-midiroute", "debug.log")
}

// Enable starts debug logging to Path()
func Enable() error {
	return EnableFile(Path())
}

// EnableFile starts debug logging to path, truncating it
func EnableFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.Wrap(err, fmsg.With("create log dir"))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("open debug log", "Could not open "+path))
	}
	file = f

	// can't call Log - we hold the mutex
	write(time.Now(), "debug", "=== Debug logging started ===")
	return nil
}

// Disable stops writing the log file. Recent lines are still kept.
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
}

// Log records a message in memory and, when enabled, in the log file
func Log(category, format string, args ...any) {
	text := fmt.Sprintf(format, args...)

	mu.Lock()
	defer mu.Unlock()

	ring[ringNext] = line{category: category, text: text}
	ringNext = (ringNext + 1) % ringSize
	ringLen = min(ringLen+1, ringSize)

	write(time.Now(), category, text)
}

// write appends one line to the file; mu must be held
func write(ts time.Time, category, text string) {
	if file == nil {
		return
	}
	fmt.Fprintf(file, "[%s] %-10s %s\n", ts.Format("15:04:05.000"), category, text)
	file.Sync() // flush immediately so we see logs even on crash
}

// LogEvery logs only every N calls (use for high-frequency events)
func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}

// Recent returns up to n of the newest lines, oldest first. With categories
// given, only lines from those categories are returned.
func Recent(n int, categories ...string) []string {
	mu.Lock()
	defer mu.Unlock()

	var out []string
	for i := 0; i < ringLen && len(out) < n; i++ {
		l := ring[(ringNext-1-i+ringSize)%ringSize]
		if len(categories) > 0 && !slices.Contains(categories, l.category) {
			continue
		}
		out = append(out, l.category+": "+l.text)
	}
	slices.Reverse(out)
	return out
}
