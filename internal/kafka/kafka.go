// Package kafka provides methods for initiating kafka-topics for the app and a kafka readiness-probing
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// TopicConfigs builds single-partition topic configs for a one-broker setup.
func TopicConfigs(topics ...string) []kafkago.TopicConfig {
	res := make([]kafkago.TopicConfig, 0, len(topics))
	for _, t := range topics {
		res = append(res, kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	return res
}

// InitKafkaTopics - creates topics in kafka, an already existing topic counts as success
func InitKafkaTopics(ctx context.Context, brokerAddr string, attempts int, delay time.Duration, topics ...string) error {
	client := &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}
	req := kafkago.CreateTopicsRequest{Topics: TopicConfigs(topics...)}

	attempt := 0
	err := retry.DoContext(ctx, retry.Strategy{Attempts: max(attempts, 1), Delay: delay, Backoff: 1}, func() error {
		attempt++
		resp, err := client.CreateTopics(ctx, &req)
		if err != nil {
			zlog.Logger.Warn().Err(err).Int("attempt", attempt).Msgf("Failed to run topics creation request, waiting %v before next try...", delay)
			return err
		}
		if err := topicErrors(resp.Errors); err != nil {
			zlog.Logger.Warn().Err(err).Int("attempt", attempt).Msg("Topic creation incomplete")
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create topics after %d attempts: %w", attempt, err)
	}
	zlog.Logger.Info().Strs("topics", topics).Msg("All topics are ready")
	return nil
}

func topicErrors(errs map[string]error) error {
	var res []error
	for topic, err := range errs {
		if err == nil || errors.Is(err, kafkago.TopicAlreadyExists) {
			continue
		}
		res = append(res, fmt.Errorf("topic %q: %w", topic, err))
	}
	return errors.Join(res...)
}

// WaitKafkaReady - timeout given to kafka-service for getting fully functional
func WaitKafkaReady(ctx context.Context, brokerAddr string, attempts int, delay time.Duration) error {
	attempt := 0
	err := retry.DoContext(ctx, retry.Strategy{Attempts: max(attempts, 1), Delay: delay, Backoff: 1}, func() error {
		attempt++
		conn, err := kafkago.DialContext(ctx, "tcp", brokerAddr)
		if err != nil {
			zlog.Logger.Warn().Err(err).Int("attempt", attempt).Msgf("Kafka not ready, retrying in %v...", delay)
			return err
		}
		if errConn := conn.Close(); errConn != nil {
			zlog.Logger.Warn().Err(errConn).Msg("Failed to close connection after testing Kafka readiness")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kafka at %s is unreachable after %d attempts: %w", brokerAddr, attempt, err)
	}
	zlog.Logger.Info().Str("broker", brokerAddr).Msg("Kafka is ready!")
	return nil
}
