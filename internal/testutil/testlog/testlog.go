package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardsim/internal/logging"
)

// Start configures test logging and returns a logger writing to t.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	log := logging.New("test", zerolog.NewTestWriter(t))
	log.Info().Str("test", t.Name()).Msg("start")
	return log
}
