package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"weekly-exam-service/internal/app"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	submissionQueue = "exam.submission.created"
	finalizeQueue   = "exam.finalized"
)

// Publisher delivers submission and finalize events to RabbitMQ. Downstream
// consumers (gamification streaks, result emails) live in other services.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &Publisher{conn: conn, channel: channel}
	for _, queue := range []string{submissionQueue, finalizeQueue} {
		if _, err := p.declareQueue(queue); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) SubmissionCreated(ctx context.Context, evt app.SubmissionEvent) error {
	return p.publish(ctx, submissionQueue, evt)
}

func (p *Publisher) ExamFinalized(ctx context.Context, evt app.FinalizeEvent) error {
	return p.publish(ctx, finalizeQueue, evt)
}

func (p *Publisher) declareQueue(name string) (amqp.Queue, error) {
	return p.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (p *Publisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
}
