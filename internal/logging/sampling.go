// internal/logging/sampling.go
package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples Info and below. Warn and above bypass the sampler
// so pass failures and escalations are never dropped.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	loud, err := zapcore.NewIncreaseLevelCore(core, zapcore.WarnLevel)
	if err != nil {
		// core itself is above Warn; nothing below it to sample.
		return core
	}
	quiet := zapcore.NewSamplerWithOptions(ceilingCore{core, zapcore.InfoLevel}, cfg.Tick, cfg.Initial, cfg.Thereafter)
	return zapcore.NewTee(loud, quiet)
}

// ceilingCore drops entries above max.
type ceilingCore struct {
	zapcore.Core
	max zapcore.Level
}

func (c ceilingCore) Enabled(l zapcore.Level) bool {
	return l <= c.max && c.Core.Enabled(l)
}

func (c ceilingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c ceilingCore) With(fields []zapcore.Field) zapcore.Core {
	return ceilingCore{c.Core.With(fields), c.max}
}
