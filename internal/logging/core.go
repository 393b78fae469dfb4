package logging

import (
	"errors"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// newCore tees stdout and the otelzap bridge, then applies sampling. The
// OTEL output is skipped when no provider is given.
func newCore(cfg *Config, lp log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Stdout {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), cfg.Level))
	}
	if cfg.OTEL && lp != nil {
		cores = append(cores, otelzap.NewCore("ragd", otelzap.WithLoggerProvider(lp)))
	}

	if len(cores) == 0 {
		return nil, errors.New("at least one output must be enabled and available")
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

// newSampledCore samples entries below Error. Error and above always pass.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	sampled := zapcore.NewSamplerWithOptions(
		levelRange{Core: core, max: zapcore.WarnLevel},
		cfg.Tick, cfg.Initial, cfg.Thereafter,
	)
	return zapcore.NewTee(levelRange{Core: core, min: zapcore.ErrorLevel, hasMin: true}, sampled)
}

// levelRange passes entries at or above min when hasMin is set and at or
// below max otherwise.
type levelRange struct {
	zapcore.Core
	min, max zapcore.Level
	hasMin   bool
}

func (r levelRange) Enabled(lvl zapcore.Level) bool {
	if r.hasMin && lvl < r.min {
		return false
	}
	if !r.hasMin && lvl > r.max {
		return false
	}
	return r.Core.Enabled(lvl)
}

func (r levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !r.Enabled(e.Level) {
		return ce
	}
	return r.Core.Check(e, ce)
}

func (r levelRange) With(fields []zapcore.Field) zapcore.Core {
	r.Core = r.Core.With(fields)
	return r
}
