package rastercache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a leveled logger. Adapters for zap and logrus are provided in
// the log/zaplog and log/logruslog packages.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything. It is the default Logger of a Cache.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
