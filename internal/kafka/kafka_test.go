package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_PublishNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"localhost:1"}, "account.balance", 1)

	assert.True(t, p.Publish([]byte("c-1"), []byte(`{}`)))
	assert.False(t, p.Publish([]byte("c-1"), []byte(`{}`)), "inbox is full")

	p.Close()
	assert.False(t, p.Publish([]byte("c-1"), []byte(`{}`)), "producer is closed")
}

func TestDecode(t *testing.T) {
	type event struct {
		ClientID string `json:"client_id"`
	}

	got, err := Decode[event](kafka.Message{Value: []byte(`{"client_id":"c-1"}`)})
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ClientID)

	_, err = Decode[event](kafka.Message{Value: []byte(`not json`), Offset: 7})
	assert.ErrorContains(t, err, "offset 7")
}
