package kafka

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestTopicConfigs(t *testing.T) {
	res := TopicConfigs("a", "b")
	require.Len(t, res, 2)
	require.Equal(t, "b", res[1].Topic)
	require.Equal(t, 1, res[0].NumPartitions)
	require.Equal(t, 1, res[0].ReplicationFactor)
}

func TestTopicErrors(t *testing.T) {
	require.NoError(t, topicErrors(map[string]error{
		"a": nil,
		"b": kafkago.TopicAlreadyExists,
	}))

	err := topicErrors(map[string]error{"c": errors.New("boom")})
	require.ErrorContains(t, err, `topic "c"`)
}

func TestWaitKafkaReady_Unreachable(t *testing.T) {
	// занимаем порт и сразу освобождаем: по нему гарантированно никто не слушает
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	err = WaitKafkaReady(context.Background(), addr, 2, 10*time.Millisecond)
	require.Error(t, err)
	require.ErrorContains(t, err, "after 2 attempts")
}
