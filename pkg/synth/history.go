package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	historyPath string
	historyMu   sync.Mutex
)

// SetLogPath configures the synthesis history file. Empty disables it.
func SetLogPath(path string) {
	historyMu.Lock()
	defer historyMu.Unlock()
	historyPath = path
}

// LogAttempt appends one candidate call to the history file.
func LogAttempt(endpoint string, req Request, status int, err error) {
	historyMu.Lock()
	defer historyMu.Unlock()
	if historyPath == "" {
		return
	}

	_ = os.MkdirAll(filepath.Dir(historyPath), 0o755)
	f, fileErr := os.OpenFile(historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fileErr != nil {
		return
	}
	defer f.Close()

	statusStr := fmt.Sprintf("%d", status)
	if err != nil {
		statusStr = fmt.Sprintf("ERROR(%v)", err)
	}

	// [TIMESTAMP] [ENDPOINT] STATUS: <code> | lang=<l> format=<f> chars=<n>
	entry := fmt.Sprintf("[%s] [%s] STATUS: %s | lang=%s format=%s speed=%.2f chars=%d slug=%s\n",
		time.Now().Format("2006-01-02 15:04:05"), endpoint, statusStr,
		req.Language, req.Format, req.Speed, len([]rune(req.Text)), req.Slug)
	_, _ = f.WriteString(entry)
}
