package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Messages = make(chan []byte, 128)

const (
	ErrorLvl             = 0
	WarningLvl           = 1
	InfoLvl              = 2
	ActionLvl            = 3
	EventsLvl            = 4
	EventsNotAssignedLvl = 5
	ReplayLvl            = 6

	DebugLvl = 378
)

var (
	Error             = zap.Int("level", ErrorLvl)
	Warning           = zap.Int("level", WarningLvl)
	Info              = zap.Int("level", InfoLvl)
	Action            = zap.Int("level", ActionLvl)
	Events            = zap.Int("level", EventsLvl)
	EventsNotAssigned = zap.Int("level", EventsNotAssignedLvl)
	Replay            = zap.Int("level", ReplayLvl)

	Debug = zap.Int("level", DebugLvl)
)

// LevelName returns short label of given level class, used by log printers.
func LevelName(level int) string {
	switch level {
	case ErrorLvl:
		return "error"
	case WarningLvl:
		return "warning"
	case InfoLvl:
		return "info"
	case ActionLvl:
		return "action"
	case EventsLvl:
		return "event"
	case EventsNotAssignedLvl:
		return "unassigned"
	case ReplayLvl:
		return "replay"
	case DebugLvl:
		return "debug"
	default:
		return "unknown"
	}
}

type chanWriter struct {
	sync.Mutex
	target chan<- []byte
}

func (w *chanWriter) Write(p []byte) (n int, err error) {
	w.Lock()
	var newSlice = make([]byte, len(p))
	copy(newSlice, p)
	// entry is dropped when nobody drains the channel, logging must never stall the control loop
	select {
	case w.target <- newSlice:
	default:
	}
	w.Unlock()
	return len(p), nil
}

func (w *chanWriter) Sync() error {
	return nil
}

func newLogger(target chan<- []byte) *zap.Logger {
	writer := &chanWriter{target: target}
	cfg := zap.NewProductionEncoderConfig()
	cfg.SkipLineEnding = true
	cfg.EncodeTime = zapcore.EpochNanosTimeEncoder
	cfg.LevelKey = ""
	encoder := zapcore.NewJSONEncoder(cfg)

	return zap.New(
		zapcore.NewCore(encoder, zapcore.Lock(writer), zap.DebugLevel),
		zap.AddCaller(),
	)
}

func GetLogger() *zap.Logger {
	return newLogger(Messages)
}
