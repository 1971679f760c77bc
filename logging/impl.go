package logging

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/mat"
)

type (
	impl struct {
		name  string
		level AtomicLevel
		inUTC bool

		appenders []Appender
	}

	// LogEntry embeds a zapcore Entry and slice of Fields.
	LogEntry struct {
		zapcore.Entry
		fields []zapcore.Field
	}

	// formatter builds the message and fields of an entry once it is known to be logged.
	formatter func() (string, []zapcore.Field)
)

// NewLogEntry returns an entry stamped with the current time, the logger name and the caller of
// the logging method.
func (imp *impl) NewLogEntry() *LogEntry {
	ret := &LogEntry{}
	ret.Time = time.Now()
	if imp.inUTC {
		ret.Time = ret.Time.UTC()
	}
	ret.LoggerName = imp.name
	ret.Caller = getCaller()
	return ret
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.AsZap().Desugar()
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	var errs error
	for _, appender := range imp.appenders {
		errs = multierr.Append(errs, appender.Sync())
	}
	return errs
}

// AsZap builds a zap logger at the same level. Appenders that are themselves zap cores, such as the
// test observer, are teed in.
func (imp *impl) AsZap() *zap.SugaredLogger {
	config := NewZapLoggerConfig()
	config.Level = zap.NewAtomicLevelAt(imp.level.Get().AsZap())
	ret := zap.Must(config.Build()).Sugar().Named(imp.name)
	for _, appender := range imp.appenders {
		core, ok := appender.(zapcore.Core)
		if !ok {
			continue
		}
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return ret
}

// logAt is the single path every logging method goes through. It must be called directly from the
// public method so the caller depth in getCaller stays right.
func (imp *impl) logAt(level Level, format formatter) {
	if level < imp.level.Get() {
		return
	}
	entry := imp.NewLogEntry()
	entry.Level = level.AsZap()
	entry.Message, entry.fields = format()

	for _, appender := range imp.appenders {
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func sprint(args []interface{}) formatter {
	return func() (string, []zapcore.Field) {
		return fmt.Sprint(args...), nil
	}
}

func sprintf(template string, args []interface{}) formatter {
	return func() (string, []zapcore.Field) {
		return fmt.Sprintf(template, args...), nil
	}
}

// withFields pairs up keysAndValues. A trailing key without a value is kept with an error in its
// place.
func withFields(msg string, keysAndValues []interface{}) formatter {
	return func() (string, []zapcore.Field) {
		fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
		for i := 0; i < len(keysAndValues); i += 2 {
			key := fmt.Sprint(keysAndValues[i])
			if i+1 == len(keysAndValues) {
				fields = append(fields, zap.Error(errors.Errorf("unpaired log key %q", key)))
				break
			}
			fields = append(fields, field(key, keysAndValues[i+1]))
		}
		return msg, fields
	}
}

// field encodes geometry values readably: matrices on one line, and anything with a String method
// (poses, quadrics, boxes, factors) through it rather than through its exported fields.
func field(key string, value interface{}) zapcore.Field {
	switch v := value.(type) {
	case error:
		return zap.NamedError(key, v)
	case mat.Matrix:
		return zap.String(key, fmt.Sprintf("%v", mat.Formatted(v, mat.FormatMATLAB())))
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}

func (imp *impl) Debug(args ...interface{}) {
	imp.logAt(DEBUG, sprint(args))
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.logAt(DEBUG, sprintf(template, args))
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.logAt(DEBUG, withFields(msg, keysAndValues))
}

func (imp *impl) Info(args ...interface{}) {
	imp.logAt(INFO, sprint(args))
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.logAt(INFO, sprintf(template, args))
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.logAt(INFO, withFields(msg, keysAndValues))
}

func (imp *impl) Warn(args ...interface{}) {
	imp.logAt(WARN, sprint(args))
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.logAt(WARN, sprintf(template, args))
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.logAt(WARN, withFields(msg, keysAndValues))
}

func (imp *impl) Error(args ...interface{}) {
	imp.logAt(ERROR, sprint(args))
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.logAt(ERROR, sprintf(template, args))
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.logAt(ERROR, withFields(msg, keysAndValues))
}

// getCaller reports the code that called the public logging method: getCaller, NewLogEntry, logAt
// and the method itself sit above it on the stack.
func getCaller() zapcore.EntryCaller {
	const skipToLogCaller = 4
	var entryCaller zapcore.EntryCaller
	var ok bool
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true
	if fn := runtime.FuncForPC(entryCaller.PC); fn != nil {
		entryCaller.Function = fn.Name()
	}
	return entryCaller
}
