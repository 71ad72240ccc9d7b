package observability

import (
	"github.com/danmuck/pdlp/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process logger and returns a child tagged with
// the component name.
func InitLogger(component string) zerolog.Logger {
	logging.ConfigureRuntime()
	return log.Logger.With().Str("component", component).Logger()
}
