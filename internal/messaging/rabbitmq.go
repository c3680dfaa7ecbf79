package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrBrokerUnavailable = errors.New("rabbitmq connection is not available")

// amqpSession is one broker connection with a single channel on which the
// cleanup topology has been declared.
type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialWithRetry(url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("rabbitmq dial failed", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		if attempt < MaxConnectRetry {
			time.Sleep(RetryDelay)
		}
	}
	return nil, fmt.Errorf("unable to reach rabbitmq after %d attempts: %w", MaxConnectRetry, lastErr)
}

// declareCleanupTopology declares the cleanup queue and the queue its rejected
// deliveries are routed to through the default exchange.
func declareCleanupTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(StorageCleanupDeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", StorageCleanupDeadLetterQueue, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": StorageCleanupDeadLetterQueue,
	}
	if _, err := ch.QueueDeclare(StorageCleanupQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare %s: %w", StorageCleanupQueue, err)
	}
	return nil
}

// openSession dials the broker and prepares a channel. A positive prefetch
// limits the unacknowledged deliveries the channel will hold.
func openSession(url string, prefetch int) (*amqpSession, error) {
	conn, err := dialWithRetry(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("error setting rabbitmq prefetch: %w", err)
		}
	}

	if err := declareCleanupTopology(ch); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring rabbitmq topology: %w", err)
	}

	return &amqpSession{conn: conn, ch: ch}, nil
}

// closed returns a channel that yields the error that shut the session down.
// It is closed without a value on a graceful close.
func (s *amqpSession) closed() <-chan *amqp.Error {
	return s.ch.NotifyClose(make(chan *amqp.Error, 1))
}

func (s *amqpSession) close() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		slog.Error("error closing rabbitmq connection", "error", err)
	}
}

type RabbitMQPublisher struct {
	url string

	mu      sync.RWMutex
	session *amqpSession
	done    chan struct{}
	once    sync.Once
}

var _ Publisher = (*RabbitMQPublisher)(nil)

func NewRabbitMQPublisher(rabbitMQURL string) (*RabbitMQPublisher, error) {
	session, err := openSession(rabbitMQURL, 0)
	if err != nil {
		return nil, err
	}
	slog.Info("rabbitmq publisher connected")

	p := &RabbitMQPublisher{url: rabbitMQURL, session: session, done: make(chan struct{})}
	go p.supervise(session)
	return p, nil
}

// supervise replaces the session whenever the broker drops it. Publishes fail
// fast with ErrBrokerUnavailable while a replacement is being dialed.
func (p *RabbitMQPublisher) supervise(session *amqpSession) {
	for {
		select {
		case amqpErr := <-session.closed():
			select {
			case <-p.done:
				return
			default:
			}
			slog.Warn("rabbitmq publisher lost its connection", "error", amqpErr)
		case <-p.done:
			return
		}

		p.mu.Lock()
		p.session = nil
		p.mu.Unlock()

		next, ok := p.redial()
		if !ok {
			return
		}

		p.mu.Lock()
		select {
		case <-p.done:
			p.mu.Unlock()
			next.close()
			return
		default:
			p.session = next
		}
		p.mu.Unlock()
		session = next
		slog.Info("rabbitmq publisher reconnected")
	}
}

func (p *RabbitMQPublisher) redial() (*amqpSession, bool) {
	for {
		next, err := openSession(p.url, 0)
		if err == nil {
			select {
			case <-p.done:
				next.close()
				return nil, false
			default:
				return next, true
			}
		}
		slog.Error("rabbitmq publisher reconnect failed", "error", err)

		select {
		case <-p.done:
			return nil, false
		case <-time.After(RetryDelay * 10):
		}
	}
}

func (p *RabbitMQPublisher) PublishCleanupTask(ctx context.Context, payload StorageCleanupPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding cleanup task for conversation %s: %w", payload.ConversationId, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.session == nil || p.session.ch.IsClosed() {
		return ErrBrokerUnavailable
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.session.ch.PublishWithContext(ctx, "", StorageCleanupQueue, false, false, msg); err != nil {
		slog.Error("error publishing cleanup task", "conversation_id", payload.ConversationId, "error", err)
		return fmt.Errorf("error publishing cleanup task: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() {
	p.once.Do(func() {
		close(p.done)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.session != nil {
			p.session.close()
			p.session = nil
		}
	})
}

type RabbitMQTask struct {
	delivery amqp.Delivery
}

func (t *RabbitMQTask) Type() string {
	return t.delivery.RoutingKey
}

func (t *RabbitMQTask) Payload() []byte {
	return t.delivery.Body
}

func (t *RabbitMQTask) Ack() error {
	return t.delivery.Ack(false)
}

// Nack requeues a first delivery. A redelivered task goes to the dead letter
// queue.
func (t *RabbitMQTask) Nack() error {
	return t.delivery.Nack(false, !t.delivery.Redelivered)
}

func (t *RabbitMQTask) Reject() error {
	return t.delivery.Reject(false)
}

// RabbitMQReceiver consumes the cleanup queue one delivery at a time and
// reconnects until it is closed.
type RabbitMQReceiver struct {
	url   string
	tasks chan Task
	done  chan struct{}
	once  sync.Once
}

var _ Receiver = (*RabbitMQReceiver)(nil)

func NewRabbitMQReceiver(rabbitMQURL string) (*RabbitMQReceiver, error) {
	r := &RabbitMQReceiver{
		url:   rabbitMQURL,
		tasks: make(chan Task),
		done:  make(chan struct{}),
	}

	session, deliveries, err := r.subscribe()
	if err != nil {
		return nil, err
	}
	slog.Info("rabbitmq receiver consuming", "queue", StorageCleanupQueue)

	go r.run(session, deliveries)
	return r, nil
}

func (r *RabbitMQReceiver) subscribe() (*amqpSession, <-chan amqp.Delivery, error) {
	session, err := openSession(r.url, 1)
	if err != nil {
		return nil, nil, err
	}

	deliveries, err := session.ch.Consume(StorageCleanupQueue, "", false, false, false, false, nil)
	if err != nil {
		session.close()
		return nil, nil, fmt.Errorf("error consuming %s: %w", StorageCleanupQueue, err)
	}
	return session, deliveries, nil
}

func (r *RabbitMQReceiver) run(session *amqpSession, deliveries <-chan amqp.Delivery) {
	for {
		if !r.forward(deliveries) {
			slog.Info("stopping rabbitmq receiver")
			session.close()
			return
		}

		slog.Warn("rabbitmq receiver lost its connection, reconnecting")
		session.close()

		for {
			var err error
			session, deliveries, err = r.subscribe()
			if err == nil {
				slog.Info("rabbitmq receiver reconnected")
				break
			}
			slog.Error("rabbitmq receiver reconnect failed", "error", err)

			select {
			case <-r.done:
				return
			case <-time.After(RetryDelay * 10):
			}
		}
	}
}

// forward hands deliveries to Tasks until the delivery channel closes, which
// it reports as true, or the receiver is closed.
func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return true
			}
			select {
			case r.tasks <- &RabbitMQTask{delivery: d}:
			case <-r.done:
				return false
			}
		case <-r.done:
			return false
		}
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.once.Do(func() { close(r.done) })
}
