package logging

import (
	"io"
	"os"

	"github.com/labstack/gommon/log"
	"github.com/ziflex/lecho/v3"
)

// Logger builds the application logger. With a log file path configured
// output goes to both STDOUT and the file, which is opened in append
// mode so restarts don't truncate it.
func Logger(logFilePath string) *lecho.Logger {
	var output io.Writer = os.Stdout
	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			output = io.MultiWriter(os.Stdout, file)
		}
	}
	return lecho.New(
		output,
		lecho.WithLevel(log.DEBUG),
		lecho.WithTimestamp(),
	)
}
