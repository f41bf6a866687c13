package logging

import (
	"log/slog"
	"os"
)

// New builds the JSON logger shared by every component. The service name is
// attached to every record.
func New(service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	})

	log := slog.New(handler).With(
		slog.String("service", service),
		slog.String("hostname", hostname()),
	)
	slog.SetDefault(log)
	return log
}

func hostname() string {
	name, _ := os.Hostname()
	return name
}
