package service

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// Service is a long-running process with a managed lifecycle.
type Service interface {
	Init() error
	Start() error
	Stop() error
}

// Run drives a service through Init and Start, then blocks until
// SIGINT/SIGTERM before calling Stop.
func Run(s Service) error {
	if err := s.Init(); err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Msgf("received signal %v, shutting down", sig)

	return s.Stop()
}
