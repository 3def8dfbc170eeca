package mqtt

// LogSink adapts a Publisher to zapcore.WriteSyncer. Every write is one
// encoded record. Publish failures are swallowed; logging never fails
// because the transport is down.
type LogSink struct {
	pub Publisher
}

// NewLogSink returns a sink writing to pub.
func NewLogSink(pub Publisher) *LogSink {
	return &LogSink{pub: pub}
}

func (s *LogSink) Write(p []byte) (int, error) {
	// zap reuses its buffer after Write returns
	line := make([]byte, len(p))
	copy(line, p)
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	_ = s.pub.PublishLog(line)
	return len(p), nil
}

func (s *LogSink) Sync() error { return nil }
