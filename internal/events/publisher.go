package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип события.
type MessageType string

// Типы событий.
const (
	MessageTypeRunStarted    MessageType = "run.started"
	MessageTypeRunCompleted  MessageType = "run.completed"
	MessageTypeRunFailed     MessageType = "run.failed"
	MessageTypeTaskCompleted MessageType = "task.completed"
	MessageTypeTaskFailed    MessageType = "task.failed"
	MessageTypeEvalCompleted MessageType = "eval.completed"
	MessageTypeEvalFailed    MessageType = "eval.failed"
)

// Publisher публикует события жизненного цикла в RabbitMQ.
//
// Все методы безопасны при nil-получателе: без RabbitMQ события
// молча не публикуются, выполнение workflow от этого не зависит.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — событие для публикации.
type Message struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunEventPayload — payload события жизненного цикла run.
type RunEventPayload struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	RunType    string `json:"run_type"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// TaskEventPayload — payload события завершения task.
type TaskEventPayload struct {
	TaskID string `json:"task_id"`
	RunID  string `json:"run_id"`
	NodeID string `json:"node_id"`
	Status string `json:"status"` // COMPLETED или FAILED
	Error  string `json:"error,omitempty"`
}

// EvalEventPayload — payload события завершения eval run.
type EvalEventPayload struct {
	EvalRunID  string `json:"eval_run_id"`
	EvalName   string `json:"eval_name"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// Publish публикует событие в обменник с routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	if p == nil || p.conn == nil {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeEvents), // exchange
			string(routingKey),     // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // событие переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
		}

		p.logger.Debug("published event",
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishRunStarted публикует событие о старте run.
func (p *Publisher) PublishRunStarted(ctx context.Context, payload RunEventPayload) error {
	return p.publish(ctx, RoutingKeyRunStarted, MessageTypeRunStarted, payload)
}

// PublishRunFinished публикует терминальное событие run.
// Routing key выбирается по статусу: run.completed либо run.failed.
func (p *Publisher) PublishRunFinished(ctx context.Context, payload RunEventPayload) error {
	key, typ := RoutingKeyRunCompleted, MessageTypeRunCompleted
	if payload.Status != "COMPLETED" {
		key, typ = RoutingKeyRunFailed, MessageTypeRunFailed
	}
	return p.publish(ctx, key, typ, payload)
}

// PublishTaskFinished публикует терминальное событие task.
func (p *Publisher) PublishTaskFinished(ctx context.Context, payload TaskEventPayload) error {
	key, typ := RoutingKeyTaskCompleted, MessageTypeTaskCompleted
	if payload.Status != "COMPLETED" {
		key, typ = RoutingKeyTaskFailed, MessageTypeTaskFailed
	}
	return p.publish(ctx, key, typ, payload)
}

// PublishEvalFinished публикует терминальное событие eval run.
func (p *Publisher) PublishEvalFinished(ctx context.Context, payload EvalEventPayload) error {
	key, typ := RoutingKeyEvalCompleted, MessageTypeEvalCompleted
	if payload.Status != "COMPLETED" {
		key, typ = RoutingKeyEvalFailed, MessageTypeEvalFailed
	}
	return p.publish(ctx, key, typ, payload)
}

// publish заворачивает payload в конверт Message.
func (p *Publisher) publish(ctx context.Context, key RoutingKey, typ MessageType, payload any) error {
	if p == nil || p.conn == nil {
		return nil
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, key, msg)
}
