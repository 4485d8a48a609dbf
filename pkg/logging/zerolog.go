package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter backs the Logger interface with a configured zerolog.Logger.
// args are interpreted as alternating key/value pairs, matching the
// convention the rest of the codebase already uses when calling Logger
// methods (e.g. logger.Info("transcription completed", "sessionID", id)).
type ZerologAdapter struct {
	log zerolog.Logger
}

// NewZerologAdapter builds an adapter writing to w (stdout by default) at
// the given minimum level. Pass a *os.File opened from -logfile for file
// output, or os.Stdout for the default destination.
func NewZerologAdapter(w io.Writer, level zerolog.Level) *ZerologAdapter {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &ZerologAdapter{log: l}
}

func withFields(e *zerolog.Event, args []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (a *ZerologAdapter) Debug(msg string, args ...interface{}) {
	withFields(a.log.Debug(), args).Msg(msg)
}

func (a *ZerologAdapter) Info(msg string, args ...interface{}) {
	withFields(a.log.Info(), args).Msg(msg)
}

func (a *ZerologAdapter) Warn(msg string, args ...interface{}) {
	withFields(a.log.Warn(), args).Msg(msg)
}

func (a *ZerologAdapter) Error(msg string, args ...interface{}) {
	withFields(a.log.Error(), args).Msg(msg)
}
