package main

import (
	"context"
	"net/http"
	"time"

	"github.com/wb-go/wbf/zlog"
)

type closer struct {
	name  string
	close func() error
}

// shutdown даёт запущенным колоризациям доработать, затем закрывает соединения в обратном порядке
func shutdown(srv *http.Server, grace time.Duration, closers []closer) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to shutdown HTTP-server gracefully")
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].close(); err != nil {
			zlog.Logger.Error().Err(err).Msgf("Failed to close %s connection", closers[i].name)
			continue
		}
		zlog.Logger.Info().Msgf("%s connection closed", closers[i].name)
	}
}
