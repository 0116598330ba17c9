package orchestrator

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// HandleSignals calls cancel on the first SIGINT or SIGTERM. Later signals are
// logged and ignored so that shutdown is not cut short. stop releases the handler.
func HandleSignals(cancel func()) (stop func()) {
	return handleSignals(cancel, nil)
}

func handleSignals(cancel func(), received chan<- os.Signal) (stop func()) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		first := true
		for {
			select {
			case <-done:
				return
			case s := <-sigCh:
				if first {
					first = false
					log.Info().Str("signal", s.String()).Msg("shutting down")
					cancel()
				} else {
					log.Warn().Str("signal", s.String()).Msg("shutdown already in progress")
				}
				if received != nil {
					received <- s
				}
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
