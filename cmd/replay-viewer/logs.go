package main

import (
	"fmt"
	"sync"

	"github.com/rivo/tview"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogManager keeps the event log panel. Entries are stamped with simulation
// time, not wall-clock time.
type LogManager struct {
	textView *tview.TextView

	// messages stores recent log messages
	messages    []LogMessage
	maxMessages int

	mu sync.Mutex
}

// LogMessage is a single log entry
type LogMessage struct {
	Time    float64
	Level   LogLevel
	Message string
}

// NewLogManager creates a new log manager
func NewLogManager(maxMessages int) *LogManager {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxMessages)

	textView.SetBorder(true).SetTitle(" Events ")

	return &LogManager{
		textView:    textView,
		messages:    make([]LogMessage, 0, maxMessages),
		maxMessages: maxMessages,
	}
}

// GetView returns the tview component
func (lm *LogManager) GetView() tview.Primitive {
	return lm.textView
}

// AddLog appends a message at simulation time t
func (lm *LogManager) AddLog(level LogLevel, t float64, format string, args ...interface{}) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.messages = append(lm.messages, LogMessage{
		Time:    t,
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
	if len(lm.messages) > lm.maxMessages {
		lm.messages = lm.messages[len(lm.messages)-lm.maxMessages:]
	}

	lm.refresh()
}

// Messages returns a copy of the retained messages
func (lm *LogManager) Messages() []LogMessage {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return append([]LogMessage(nil), lm.messages...)
}

// refresh redraws the text view from messages
func (lm *LogManager) refresh() {
	lm.textView.Clear()

	for _, msg := range lm.messages {
		levelStr := fmt.Sprintf("[%s]%-5s[-]", levelColor(msg.Level), msg.Level)

		// Format: T+SS.SS LEVEL Message
		line := fmt.Sprintf("[gray]T+%6.2f[-] %s %s\n", msg.Time, levelStr, tview.Escape(msg.Message))
		fmt.Fprint(lm.textView, line)
	}

	lm.textView.ScrollToEnd()
}

// levelColor returns the tview color tag for a log level
func levelColor(level LogLevel) string {
	switch level {
	case LogLevelDebug:
		return "gray"
	case LogLevelWarn:
		return "yellow"
	case LogLevelError:
		return "red"
	default:
		return "white"
	}
}

// Clear removes all log messages
func (lm *LogManager) Clear() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.messages = lm.messages[:0]
	lm.textView.Clear()
}
