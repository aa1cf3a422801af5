package cellstoretesting

import (
	"log/slog"
	"os"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/utils/pkg/logger"
)

// NewLogger returns the logger used by tests. Only errors are written unless DEBUG is set to 1
// (info) or 2 (debug).
func NewLogger() *slog.Logger {
	level := slog.LevelError
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	}
	return logger.New(os.Stderr, logger.Options{Level: level})
}
