// Package bridge connects the multicast listener to a message backend:
// it decodes raw Speedwire datagrams and publishes the resulting
// records.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homewire/sma2mqtt/speedwire"
)

// ServiceConfig holds tuning knobs for the bridge service.
type ServiceConfig struct {
	NumWorkers     int           `mapstructure:"num_workers"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// DefaultServiceConfig provides sensible defaults. The meter sends one
// datagram per second, so a small worker pool is plenty; more workers
// only help when the broker is slow.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		NumWorkers:     2,
		PublishTimeout: 30 * time.Second,
	}
}

// Service consumes raw datagrams from a source channel, decodes them,
// and publishes non-empty records.
type Service struct {
	decoder   *speedwire.Decoder
	publisher MessagePublisher
	source    <-chan []byte

	config ServiceConfig
	logger zerolog.Logger

	// RecordHook, when set before Start, is invoked with every decoded
	// record before it is published. The run command uses it to capture
	// a sample record and trigger discovery publishing.
	RecordHook func(speedwire.Record)

	// ErrorChan surfaces publish errors for observability.
	ErrorChan chan error

	cancelCtx          context.Context
	cancelFunc         context.CancelFunc
	wg                 sync.WaitGroup
	closeErrorChanOnce sync.Once
}

// NewService creates a bridge service reading from source.
func NewService(publisher MessagePublisher, source <-chan []byte, logger zerolog.Logger, cfg ServiceConfig) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		decoder:    speedwire.NewDecoder(logger),
		publisher:  publisher,
		source:     source,
		config:     cfg,
		logger:     logger.With().Str("component", "bridge").Logger(),
		ErrorChan:  make(chan error, 10),
		cancelCtx:  ctx,
		cancelFunc: cancel,
	}
}

// Start launches the processing workers.
func (s *Service) Start() error {
	s.logger.Info().Int("workers", s.config.NumWorkers).Msg("Starting bridge service...")

	for i := 0; i < s.config.NumWorkers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			for {
				select {
				case <-s.cancelCtx.Done():
					s.logger.Info().Int("worker_id", workerID).Msg("Worker shutting down due to context cancellation")
					return
				case datagram, ok := <-s.source:
					if !ok {
						s.logger.Info().Int("worker_id", workerID).Msg("Datagram source closed, worker stopping")
						return
					}
					s.processDatagram(datagram, workerID)
				}
			}
		}(i)
	}
	return nil
}

func (s *Service) processDatagram(datagram []byte, workerID int) {
	rec := s.decoder.Decode(datagram)
	if len(rec) == 0 {
		s.logger.Debug().Int("worker_id", workerID).Int("bytes", len(datagram)).Msg("Non-data datagram, nothing to publish")
		return
	}

	if s.RecordHook != nil {
		s.RecordHook(rec)
	}

	publishCtx, cancel := context.WithTimeout(s.cancelCtx, s.config.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, rec); err != nil {
		s.logger.Error().Int("worker_id", workerID).Err(err).Msg("Failed to publish record")
		s.sendError(err)
		return
	}
	s.logger.Debug().Int("worker_id", workerID).Int("keys", len(rec)).Msg("Record published")
}

// sendError attempts a non-blocking send to ErrorChan.
func (s *Service) sendError(err error) {
	select {
	case s.ErrorChan <- err:
	default:
		s.logger.Warn().Err(err).Msg("ErrorChan is full, dropping error")
	}
}

// Stop shuts the service down: workers drain, then the publisher is
// stopped and ErrorChan closed.
func (s *Service) Stop() {
	s.logger.Info().Msg("Stopping bridge service...")
	s.cancelFunc()
	s.wg.Wait()

	if s.publisher != nil {
		s.publisher.Stop()
	}

	s.closeErrorChanOnce.Do(func() {
		close(s.ErrorChan)
	})
	s.logger.Info().Msg("Bridge service stopped.")
}
