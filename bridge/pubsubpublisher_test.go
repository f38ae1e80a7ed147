package bridge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewPubSubPublisherValidatesConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingProject", func(t *testing.T) {
		_, err := NewPubSubPublisher(ctx, &PubSubPublisherConfig{TopicID: "meter-records"}, zerolog.Nop())
		assert.ErrorContains(t, err, "project ID")
	})

	t.Run("MissingTopic", func(t *testing.T) {
		_, err := NewPubSubPublisher(ctx, &PubSubPublisherConfig{ProjectID: "home-energy"}, zerolog.Nop())
		assert.ErrorContains(t, err, "topic ID")
	})
}
