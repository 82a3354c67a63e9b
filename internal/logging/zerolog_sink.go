package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologSink adapts the logging package's Sink interface onto a
// zerolog.Logger, the structured-logging library used elsewhere across
// this dependency family. Host applications that want JSON or
// console-pretty output on disk install this sink instead of writing
// their own.
type ZerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink builds a sink writing to w. When jsonOutput is false,
// output is rendered console-pretty (development use); otherwise each
// event is one JSON line suitable for log aggregation.
func NewZerologSink(w io.Writer, jsonOutput bool) *ZerologSink {
	if w == nil {
		w = os.Stderr
	}
	var zl zerolog.Logger
	if jsonOutput {
		zl = zerolog.New(w).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return &ZerologSink{logger: zl}
}

// Emit implements Sink.
func (s *ZerologSink) Emit(e Event) {
	var evt *zerolog.Event
	switch e.Level {
	case LevelDebug:
		evt = s.logger.Debug()
	case LevelWarn:
		evt = s.logger.Warn()
	case LevelError:
		evt = s.logger.Error()
	default:
		evt = s.logger.Info()
	}
	evt = evt.Str("category", string(e.Category))
	for k, v := range e.Fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg(e.Message)
}
