// Package listener joins the Speedwire multicast group and feeds raw
// datagrams to the bridge service over a channel.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Config holds the multicast receive settings. The defaults match the
// group the SMA Home Manager broadcasts on.
type Config struct {
	Group           string `mapstructure:"group"`
	Port            int    `mapstructure:"port"`
	Interface       string `mapstructure:"interface"`
	ReadBuffer      int    `mapstructure:"read_buffer"`
	MaxDatagramSize int    `mapstructure:"max_datagram_size"`
	ChanCapacity    int    `mapstructure:"chan_capacity"`
}

// DefaultConfig provides the Home Manager's well-known group and the
// observed maximum datagram size.
func DefaultConfig() Config {
	return Config{
		Group:           "239.12.255.254",
		Port:            9522,
		ReadBuffer:      2048,
		MaxDatagramSize: 608,
		ChanCapacity:    100,
	}
}

// Listener receives multicast datagrams and delivers copies of them on
// the Datagrams channel. The channel is closed when the receive loop
// exits.
type Listener struct {
	cfg    Config
	logger zerolog.Logger

	conn *net.UDPConn

	// Datagrams delivers one buffer per received datagram. Buffers are
	// copies; consumers own them.
	Datagrams chan []byte

	cancelCtx  context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a Listener. Start must be called before datagrams flow.
func New(cfg Config, logger zerolog.Logger) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		cfg:        cfg,
		logger:     logger.With().Str("component", "listener").Logger(),
		Datagrams:  make(chan []byte, cfg.ChanCapacity),
		cancelCtx:  ctx,
		cancelFunc: cancel,
	}
}

// Start joins the multicast group and launches the receive loop.
func (l *Listener) Start() error {
	group := net.ParseIP(l.cfg.Group)
	if group == nil {
		return fmt.Errorf("invalid multicast group %q", l.cfg.Group)
	}

	var iface *net.Interface
	if l.cfg.Interface != "" {
		found, err := net.InterfaceByName(l.cfg.Interface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", l.cfg.Interface, err)
		}
		iface = found
	}

	conn, err := net.ListenMulticastUDP("udp4", iface, &net.UDPAddr{IP: group, Port: l.cfg.Port})
	if err != nil {
		return fmt.Errorf("join multicast group %s:%d: %w", l.cfg.Group, l.cfg.Port, err)
	}
	if err := conn.SetReadBuffer(l.cfg.ReadBuffer); err != nil {
		l.logger.Warn().Err(err).Int("bytes", l.cfg.ReadBuffer).Msg("Could not set socket read buffer")
	}
	l.conn = conn

	l.logger.Info().
		Str("group", l.cfg.Group).
		Int("port", l.cfg.Port).
		Str("interface", l.cfg.Interface).
		Msg("Listening for Speedwire datagrams")

	l.wg.Add(1)
	go l.receiveLoop()
	return nil
}

func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	defer l.closeOnce.Do(func() { close(l.Datagrams) })

	buf := make([]byte, l.cfg.MaxDatagramSize)
	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.cancelCtx.Done():
				l.logger.Info().Msg("Receive loop stopping")
				return
			default:
			}
			l.logger.Error().Err(err).Msg("Error reading datagram")
			continue
		}

		// Copy out of the shared read buffer before handing off.
		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		select {
		case l.Datagrams <- datagram:
			l.logger.Debug().Int("bytes", n).Stringer("src", src).Msg("Datagram received")
		case <-l.cancelCtx.Done():
			l.logger.Warn().Msg("Shutdown signaled, datagram dropped")
			return
		default:
			l.logger.Error().Msg("Datagram channel is full, dropping datagram. Consider a larger capacity or more workers.")
		}
	}
}

// Stop closes the socket and waits for the receive loop to exit. The
// Datagrams channel is closed on return.
func (l *Listener) Stop() {
	l.logger.Info().Msg("Stopping listener...")
	l.cancelFunc()
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("Error closing multicast socket")
		}
	}
	l.wg.Wait()
	l.logger.Info().Msg("Listener stopped.")
}
