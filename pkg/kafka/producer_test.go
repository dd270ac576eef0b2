package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)
}

func TestProduce_RequiresTopic(t *testing.T) {
	p := &Producer{config: &ProducerConfig{}}

	assert.Error(t, p.Produce(context.Background(), nil))
	assert.Error(t, p.Produce(context.Background(), &Message{Value: []byte("x")}))
}

func TestProduceJSON_MarshalError(t *testing.T) {
	p := &Producer{config: &ProducerConfig{}}

	err := p.ProduceJSON(context.Background(), "topic", "key", make(chan int), nil)
	assert.ErrorContains(t, err, "marshal")
}
