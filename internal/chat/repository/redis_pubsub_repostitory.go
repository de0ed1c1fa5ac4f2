package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"
	"github.com/pawtograder/platform-sub008/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// BroadcastHandler callbacks of a room subscription, nil callbacks are skipped
type BroadcastHandler struct {
	OnMessage     func(evt domain.BroadcastEvent)
	OnReadReceipt func(receipt domain.ReadReceipt)
	OnRefresh     func()
	OnState       func(state domain.ConnectionState)
}

func (h BroadcastHandler) state(s domain.ConnectionState) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

// BroadcastChannel at-least-once room pub/sub, delivers to the sender too
type BroadcastChannel interface {
	PublishMessage(ctx context.Context, roomID string, evt domain.BroadcastEvent) error
	PublishReadReceipt(ctx context.Context, roomID string, receipt domain.ReadReceipt) error
	PublishRefresh(ctx context.Context, roomID string) error
	// Subscribe 訂閱房間, ctx 取消時關閉訂閱
	Subscribe(ctx context.Context, roomID string, h BroadcastHandler) error
}

// RoomChannel redis channel name of a room
func RoomChannel(roomID string) string {
	return "chat:room:" + roomID
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client         *redis.Client
	healthInterval time.Duration
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client:         client,
		healthInterval: 15 * time.Second,
	}
}

// PublishMessage publish an optimistic message
func (r *RedisPubSub) PublishMessage(ctx context.Context, roomID string, evt domain.BroadcastEvent) error {
	return r.publish(ctx, domain.Envelope{Type: domain.EnvelopeMessage, RoomID: roomID, Message: &evt})
}

// PublishReadReceipt publish a read receipt
func (r *RedisPubSub) PublishReadReceipt(ctx context.Context, roomID string, receipt domain.ReadReceipt) error {
	return r.publish(ctx, domain.Envelope{Type: domain.EnvelopeReadReceipt, RoomID: roomID, Receipt: &receipt})
}

// PublishRefresh notify subscribers the stored log changed
func (r *RedisPubSub) PublishRefresh(ctx context.Context, roomID string) error {
	return r.publish(ctx, domain.Envelope{Type: domain.EnvelopeRefresh, RoomID: roomID})
}

func (r *RedisPubSub) publish(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, RoomChannel(env.RoomID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// Subscribe 訂閱房間 channel, 確認訂閱成功後回報 Connected
func (r *RedisPubSub) Subscribe(ctx context.Context, roomID string, h BroadcastHandler) error {
	channel := RoomChannel(roomID)
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	h.state(domain.Connected)

	go func() {
		ch := sub.Channel()
		ticker := time.NewTicker(r.healthInterval)
		defer func() {
			ticker.Stop()
			_ = sub.Close()
			h.state(domain.Disconnected)
			logger.Log.Info("sub close", zap.String("channel", channel))
		}()

		healthy := true
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				if !healthy {
					healthy = true
					h.state(domain.Connected)
				}
				dispatchEnvelope(channel, []byte(m.Payload), h)
			case <-ticker.C:
				err := sub.Ping(ctx)
				if err != nil && healthy {
					logger.Log.Warn("pubsub ping failed", zap.String("channel", channel), zap.Error(err))
					healthy = false
					h.state(domain.Disconnected)
				} else if err == nil && !healthy {
					healthy = true
					h.state(domain.Connected)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// dispatchEnvelope decode payload and call the matching callback
func dispatchEnvelope(channel string, payload []byte, h BroadcastHandler) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Log.Error("failed to unmarshal envelope", zap.String("channel", channel), zap.Error(err))
		return
	}

	switch env.Type {
	case domain.EnvelopeMessage:
		if env.Message != nil && h.OnMessage != nil {
			h.OnMessage(*env.Message)
		}
	case domain.EnvelopeReadReceipt:
		if env.Receipt != nil && h.OnReadReceipt != nil {
			h.OnReadReceipt(*env.Receipt)
		}
	case domain.EnvelopeRefresh:
		if h.OnRefresh != nil {
			h.OnRefresh()
		}
	default:
		logger.Log.Warn("unknown envelope type", zap.String("channel", channel), zap.String("type", string(env.Type)))
	}
}
