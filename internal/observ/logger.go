package observ

import (
	"fmt"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileOptions turns on a rotating log file next to stdout. Empty Path
// disables it.
type FileOptions struct {
	Path           string
	MaxAgeDays     int
	RotationSizeMB int
}

func NewLogger(env, level string, file FileOptions) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	if file.Path == "" {
		return logger, nil
	}

	writer, err := newRotatingWriter(file)
	if err != nil {
		return nil, err
	}
	// Files are always JSON so they can be shipped as-is.
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(writer),
		config.Level,
	)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// newRotatingWriter rotates daily or at RotationSizeMB, whichever comes
// first, and keeps a stable symlink at Path pointing at the live file.
func newRotatingWriter(file FileOptions) (*rotatelogs.RotateLogs, error) {
	maxAge := file.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}
	opts := []rotatelogs.Option{
		rotatelogs.WithLinkName(file.Path),
		rotatelogs.WithRotationTime(24 * time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAge) * 24 * time.Hour),
	}
	if file.RotationSizeMB > 0 {
		opts = append(opts, rotatelogs.WithRotationSize(int64(file.RotationSizeMB)*1024*1024))
	}
	writer, err := rotatelogs.New(file.Path+".%Y%m%d", opts...)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return writer, nil
}
