package testlog

import (
	"testing"

	"github.com/danmuck/pdlp/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and marks the test in the log.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test start")
}
