package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	RunQueueName        = "ranktracker:runs"
	ProgressChannelName = "ranktracker:events:progress"
	FinishedChannelName = "ranktracker:events:finished"
)

// RedisClient implements Client using Redis. Run requests go through a list so that
// exactly one worker picks each up; progress and terminal events are fanned out over
// pub/sub for anyone listening.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis queue client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return &RedisClient{client: client}, nil
}

// PublishRunRequest sends a run request to the queue
func (r *RedisClient) PublishRunRequest(ctx context.Context, message RunRequest) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, RunQueueName, data).Err()
}

// PublishProgress broadcasts a progress event
func (r *RedisClient) PublishProgress(ctx context.Context, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, ProgressChannelName, data).Err()
}

// PublishFinished broadcasts a terminal run event
func (r *RedisClient) PublishFinished(ctx context.Context, event RunFinishedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, FinishedChannelName, data).Err()
}

// Subscribe starts listening for run requests and processes them with the handler.
// One client can only be subscribed once
func (r *RedisClient) Subscribe(ctx context.Context, handler func(RunRequest)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := r.getNewMessage(ctx)
			if err != nil {
				log.Error().
					Err(err).
					Msg("Error encountered when fetching message from queue")
				continue
			}
			if message == nil {
				continue
			}

			// Process message
			if err := processMessage(handler, *message); err != nil {
				log.Error().
					Err(err).
					Int64("run_id", message.RunID).
					Msg("Error encountered when processing message")
			}
		}
	}
}

func (r *RedisClient) getNewMessage(ctx context.Context) (*RunRequest, error) {
	result, err := r.client.BLPop(ctx, 1*time.Second, RunQueueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No message available
			return nil, nil
		}
		return nil, fmt.Errorf("BLPOP from redis queue went bad. %w", err)
	}

	// Invalid message, this shouldn't usually happen
	if len(result) < 2 {
		return nil, nil
	}

	messageData := []byte(result[1])
	var message RunRequest
	err = json.Unmarshal(messageData, &message)
	if err != nil {
		return nil, fmt.Errorf("could not parse message into RunRequest. %w", err)
	}
	return &message, nil
}

func processMessage(handler func(RunRequest), message RunRequest) (err error) {
	defer func() {
		if rcv := recover(); rcv != nil {
			// Log the panic
			log.Error().Interface("panic", rcv).Int64("run_id", message.RunID).Msg("Handler panicked")

			err = fmt.Errorf("handler panicked: %v", rcv)
		}
	}()

	handler(message)
	return nil
}

// Close terminates the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
