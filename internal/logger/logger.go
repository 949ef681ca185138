package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

const categoryField = "category"

// Logger is the category-tagged logger every component receives. Terminal
// output is colored, and when a log directory is configured every entry is also
// appended as a JSON line to a daily file.
type Logger struct {
	entry   *logrus.Logger
	logFile *os.File
}

// NewLogger logs to stdout and to logs/settlement-<date>.log.
func NewLogger() *Logger {
	return NewFileLogger("logs")
}

func NewFileLogger(dir string) *Logger {
	l := New(os.Stdout)

	if err := os.MkdirAll(dir, 0755); err != nil {
		l.Error("LOGGER", fmt.Sprintf("Failed to create log directory %s: %v", dir, err))
		return l
	}

	logFileName := filepath.Join(dir, fmt.Sprintf("settlement-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		l.Error("LOGGER", fmt.Sprintf("Failed to open log file %s: %v", logFileName, err))
		return l
	}

	l.logFile = logFile
	l.entry.AddHook(&jsonFileHook{
		writer:    logFile,
		formatter: &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"},
	})
	l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))
	return l
}

// New writes colored lines to w only.
func New(w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&terminalFormatter{})
	return &Logger{entry: base}
}

// NewNop discards everything. Used by tests.
func NewNop() *Logger {
	return New(io.Discard)
}

func (l *Logger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		l.Warn("LOGGER", fmt.Sprintf("Unknown log level %q, keeping %s", level, l.entry.GetLevel()))
		return
	}
	l.entry.SetLevel(parsed)
}

func (l *Logger) log(level logrus.Level, category, message string) {
	fields := logrus.Fields{categoryField: strings.ToUpper(category)}
	if _, file, line, ok := runtime.Caller(2); ok {
		fields["file"] = filepath.Base(file)
		fields["line"] = line
	}
	l.entry.WithFields(fields).Log(level, message)
}

func (l *Logger) Debug(category, message string) { l.log(logrus.DebugLevel, category, message) }

func (l *Logger) Info(category, message string) { l.log(logrus.InfoLevel, category, message) }

func (l *Logger) Warn(category, message string) { l.log(logrus.WarnLevel, category, message) }

func (l *Logger) Error(category, message string) { l.log(logrus.ErrorLevel, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.log(logrus.FatalLevel, category, message)
	l.Close()
	os.Exit(1)
}

// Specialized logging methods for different components
func (l *Logger) LogTicket(action, ticketID, message string) {
	l.Info("TICKET", fmt.Sprintf("[%s] %s - %s", action, ticketID, message))
}

func (l *Logger) LogPayment(action, paymentID, message string) {
	l.Info("PAYMENT", fmt.Sprintf("[%s] %s - %s", action, paymentID, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogProcess(processName, message string) {
	l.Info("PROCESS", fmt.Sprintf("[%s] %s", processName, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Debug("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
		l.logFile = nil
	}
}

// terminalFormatter renders "15:04:05 LEVEL [CATEGORY  ] message (file:line)".
type terminalFormatter struct{}

func (f *terminalFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var levelColor, categoryColor *color.Color

	switch e.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case logrus.InfoLevel:
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	case logrus.ErrorLevel:
		levelColor = color.New(color.FgRed)
		categoryColor = color.New(color.FgRed, color.Bold)
	default:
		levelColor = color.New(color.FgRed, color.Bold)
		categoryColor = color.New(color.FgRed, color.Bold)
	}

	category, _ := e.Data[categoryField].(string)
	level := strings.ToUpper(e.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}

	var b bytes.Buffer
	b.WriteString(color.New(color.FgBlue).Sprint(e.Time.UTC().Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprintf("%-5s", level))
	b.WriteByte(' ')
	b.WriteString(categoryColor.Sprintf("[%-10s]", category))
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if file, ok := e.Data["file"].(string); ok {
		b.WriteString(color.New(color.FgMagenta).Sprintf(" (%s:%v)", file, e.Data["line"]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

type jsonFileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *jsonFileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *jsonFileHook) Fire(e *logrus.Entry) error {
	line, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
