package logging

// Safe wraps an injected logger so a panicking implementation can never
// replace the error the caller is about to report. A nil logger discards.
func Safe(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	if s, ok := l.(safeLogger); ok {
		return s
	}
	return safeLogger{next: l}
}

type safeLogger struct {
	next Logger
}

func (l safeLogger) Debug(msg string, args ...any) {
	defer func() { _ = recover() }()
	l.next.Debug(msg, args...)
}

func (l safeLogger) Info(msg string, args ...any) {
	defer func() { _ = recover() }()
	l.next.Info(msg, args...)
}

func (l safeLogger) Warn(msg string, args ...any) {
	defer func() { _ = recover() }()
	l.next.Warn(msg, args...)
}

func (l safeLogger) Error(msg string, args ...any) {
	defer func() { _ = recover() }()
	l.next.Error(msg, args...)
}
