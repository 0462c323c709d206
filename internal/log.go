package internal

import (
	"log"
	"log/slog"
	"strings"
)

// ErrorLogFilter drops net/http server log lines about requests the client
// gave up on, such as an agent hanging up while BOTCHA fetches its key
// directory.
type ErrorLogFilter struct {
	Unwrap *log.Logger
}

func (elf *ErrorLogFilter) Write(p []byte) (n int, err error) {
	logMessage := string(p)
	if strings.Contains(logMessage, "context canceled") {
		return len(p), nil
	}
	if elf.Unwrap != nil {
		return elf.Unwrap.Writer().Write(p)
	}
	return len(p), nil
}

// GetFilteredHTTPLogger is the ErrorLog of the API and metrics servers.
// Whatever gets past the filter is logged through the default slog handler
// at warn level, so it comes out in the same JSON as everything else.
func GetFilteredHTTPLogger() *log.Logger {
	return log.New(&ErrorLogFilter{Unwrap: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn)}, "", 0)
}
