package main

import (
	"github.com/wb-go/wbf/zlog"
)

type closer struct {
	name  string
	close func() error
}

func shutdown(closers []closer) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].close(); err != nil {
			zlog.Logger.Error().Err(err).Msgf("Failed to close %s connection", closers[i].name)
			continue
		}
		zlog.Logger.Info().Msgf("%s connection closed", closers[i].name)
	}
}
