// Package encoder registers the "term" and "term-color" zap encodings used
// for terminal output.
package encoder

import (
	"github.com/mgutz/ansi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func init() {
	if err := zap.RegisterEncoder("term", newTermEncoder(zapcore.CapitalLevelEncoder)); err != nil {
		panic(err)
	}
	if err := zap.RegisterEncoder("term-color", newTermEncoder(colorLevelEncoder)); err != nil {
		panic(err)
	}
}

func newTermEncoder(levels zapcore.LevelEncoder) func(zapcore.EncoderConfig) (zapcore.Encoder, error) {
	return func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		cfg.EncodeLevel = levels
		return zapcore.NewConsoleEncoder(cfg), nil
	}
}

// NewDevelopmentEncoderConfig returns an encoder configuration suited to
// a person watching a terminal: short timestamps and no logger name.
func NewDevelopmentEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "",
		CallerKey:      "C",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

var levelStyles = map[zapcore.Level]string{
	zapcore.DebugLevel:  "magenta",
	zapcore.InfoLevel:   "blue",
	zapcore.WarnLevel:   "yellow",
	zapcore.ErrorLevel:  "red",
	zapcore.DPanicLevel: "red+b",
	zapcore.PanicLevel:  "red+b",
	zapcore.FatalLevel:  "red+b",
}

func colorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	style, ok := levelStyles[l]
	if !ok {
		enc.AppendString(l.CapitalString())
		return
	}
	enc.AppendString(ansi.Color(l.CapitalString(), style))
}
