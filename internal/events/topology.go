package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeEvents — единственный обменник: topic, все события жизненного
// цикла публикуются в него с routing key вида "<entity>.<outcome>".
const ExchangeEvents Exchange = "maestro.events"

// QueueAudit — catch-all очередь для аудита всех событий.
const QueueAudit Queue = "events.audit"

// Routing keys.
const (
	RoutingKeyRunStarted    RoutingKey = "run.started"
	RoutingKeyRunCompleted  RoutingKey = "run.completed"
	RoutingKeyRunFailed     RoutingKey = "run.failed"
	RoutingKeyTaskCompleted RoutingKey = "task.completed"
	RoutingKeyTaskFailed    RoutingKey = "task.failed"
	RoutingKeyEvalCompleted RoutingKey = "eval.completed"
	RoutingKeyEvalFailed    RoutingKey = "eval.failed"
)

// SetupTopology объявляет обменник, очередь аудита и binding.
//
// Внешние подписчики объявляют собственные очереди и привязывают их
// к maestro.events с нужными routing keys (например "run.*").
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeEvents), // name
			"topic",                // type
			true,                   // durable
			false,                  // auto-deleted
			false,                  // internal
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueAudit), // name
			true,               // durable
			false,              // delete when unused
			false,              // exclusive
			false,              // no-wait
			nil,                // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueAudit, err)
		}

		err = ch.QueueBind(
			string(QueueAudit),     // queue name
			"#",                    // routing key: все события
			string(ExchangeEvents), // exchange
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueAudit, err)
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Maestro RabbitMQ Topology:

    maestro.events (topic)
    └── events.audit [routing: #]
            Consumer: external subscribers

    Routing keys:
      run.started, run.completed, run.failed
      task.completed, task.failed
      eval.completed, eval.failed
  `
}
