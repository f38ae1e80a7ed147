package bridge

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "234.5", formatValue(234.5))
	assert.Equal(t, "-2.3", formatValue(-2.3))
	assert.Equal(t, "2", formatValue(2.0), "whole floats must not carry a trailing .0 exponent form")
	assert.Equal(t, "3012345678", formatValue(uint32(3012345678)))
	assert.Equal(t, "1.2.3.S|010203", formatValue("1.2.3.S|010203"))
}

func TestNeedsTLS(t *testing.T) {
	assert.True(t, needsTLS("tls://broker:8883"))
	assert.True(t, needsTLS("ssl://broker:1883"))
	assert.True(t, needsTLS("tcp://broker:8883"), "the common TLS port implies TLS")
	assert.False(t, needsTLS("tcp://broker:1883"))
}

func TestNewTLSConfig(t *testing.T) {
	t.Run("InsecureSkipVerify", func(t *testing.T) {
		cfg := &MQTTPublisherConfig{InsecureSkipVerify: true}
		tlsCfg, err := newTLSConfig(cfg, zerolog.Nop())
		require.NoError(t, err)
		assert.True(t, tlsCfg.InsecureSkipVerify)
	})

	t.Run("MissingCAFile", func(t *testing.T) {
		cfg := &MQTTPublisherConfig{CACertFile: "/tmp/nonexistent-ca.pem"}
		_, err := newTLSConfig(cfg, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("CertWithoutKeyIsNotFatal", func(t *testing.T) {
		cfg := &MQTTPublisherConfig{ClientCertFile: "/tmp/client.pem"}
		tlsCfg, err := newTLSConfig(cfg, zerolog.Nop())
		require.NoError(t, err)
		assert.Empty(t, tlsCfg.Certificates)
	})
}

func TestNewMQTTPublisherRequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(&MQTTPublisherConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
