package listener

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsBadConfig(t *testing.T) {
	t.Run("InvalidGroup", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Group = "not-an-ip"
		l := New(cfg, zerolog.Nop())
		err := l.Start()
		require.Error(t, err, "Start must fail on an unparseable group address")
		assert.Contains(t, err.Error(), "multicast group")
	})

	t.Run("UnknownInterface", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Interface = "definitely-not-a-real-iface0"
		l := New(cfg, zerolog.Nop())
		require.Error(t, l.Start(), "Start must fail on an unknown interface name")
	})
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	l := New(DefaultConfig(), zerolog.Nop())
	assert.NotPanics(t, l.Stop, "Stop before Start must be a no-op")
}

func TestDatagramsChannelCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChanCapacity = 7
	l := New(cfg, zerolog.Nop())
	assert.Equal(t, 7, cap(l.Datagrams))
}

func TestReceiveDeliversCopies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Group = "239.12.255.253" // separate group so real meters don't interfere
	cfg.Port = 0                 // ephemeral port for the test
	l := New(cfg, zerolog.Nop())

	if err := l.Start(); err != nil {
		t.Skipf("multicast not available in this environment: %v", err)
	}
	defer l.Stop()

	port := l.conn.LocalAddr().(*net.UDPAddr).Port
	sender, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP(cfg.Group), Port: port})
	if err != nil {
		t.Skipf("cannot send to multicast group in this environment: %v", err)
	}
	defer sender.Close()

	payload := []byte("SMA-test-datagram")
	if _, err := sender.Write(payload); err != nil {
		t.Skipf("multicast send failed in this environment: %v", err)
	}

	select {
	case got := <-l.Datagrams:
		assert.Equal(t, payload, got, "the delivered datagram must match what was sent")
		// A later send must not mutate the buffer already handed out.
		_, err := sender.Write([]byte(fmt.Sprintf("%17s", "overwrite")))
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, payload, got, "delivered datagrams must be copies, not views of the read buffer")
	case <-time.After(2 * time.Second):
		t.Skip("no multicast loopback in this environment")
	}
}
