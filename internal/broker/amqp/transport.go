// Package amqp implementa rpc.Transport sobre RabbitMQ.
//
// Request/reply con direct reply-to (amq.rabbitmq.reply-to): cada request se
// publica persistente en la cola durable del canal, con correlation_id = id del
// envelope y header x-request-id. Los replies llegan por un único consumer y se
// entregan al request pendiente por correlation id.
//
// Si la conexión o el canal se cierran, los requests pendientes fallan con
// rpc.ErrChannelClosed (transitorio) y se reconecta en background.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/gateway/internal/broker"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const replyQueue = "amq.rabbitmq.reply-to"

// QueuePolicy son los parámetros de cola expuestos a operadores.
type QueuePolicy struct {
	DeadLetterExchange string
	MessageTTL         time.Duration // 0 = sin x-message-ttl
	MaxLength          int           // 0 = sin x-max-length
}

// Args arma los argumentos de QueueDeclare.
func (p QueuePolicy) Args() amqp.Table {
	args := amqp.Table{}
	if p.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = p.DeadLetterExchange
	}
	if p.MessageTTL > 0 {
		args["x-message-ttl"] = p.MessageTTL.Milliseconds()
	}
	if p.MaxLength > 0 {
		args["x-max-length"] = int64(p.MaxLength)
	}
	return args
}

type Config struct {
	URL    string
	Queues map[rpc.Channel]string
	Policy QueuePolicy
	// DeclareQueues declara DLX y colas al conectar. Desactivar si las colas
	// las administra otro (argumentos distintos => PRECONDITION_FAILED).
	DeclareQueues bool
	// ReconnectMax acota el backoff de reconexión.
	ReconnectMax time.Duration
}

type Transport struct {
	cfg Config
	log *zap.Logger

	mu   sync.RWMutex // conn, ch
	conn *amqp.Connection
	ch   *amqp.Channel
	pub  sync.Mutex // serializa publish en el canal

	pmu     sync.Mutex
	pending map[string]chan amqp.Delivery

	done      chan struct{}
	closeOnce sync.Once
}

// Dial conecta (reintentando hasta que ctx venza) y arranca el watcher de reconexión.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url is required")
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 10 * time.Second
	}
	t := &Transport{
		cfg:     cfg,
		log:     logger.L().With(logger.Component("amqp")),
		pending: make(map[string]chan amqp.Delivery),
		done:    make(chan struct{}),
	}
	if err := t.connectWithRetry(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) backoff() retry.Backoff {
	b := retry.NewExponential(200 * time.Millisecond)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(t.cfg.ReconnectMax, b)
}

func (t *Transport) connectWithRetry(ctx context.Context) error {
	return retry.Do(ctx, t.backoff(), func(ctx context.Context) error {
		select {
		case <-t.done:
			return errors.New("amqp: transport closed")
		default:
		}
		if err := t.connect(); err != nil {
			t.log.Warn("amqp connect failed", logger.Err(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (t *Transport) connect() error {
	conn, err := amqp.Dial(t.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp: channel: %w", err)
	}
	if t.cfg.DeclareQueues {
		if err := t.declare(ch); err != nil {
			_ = conn.Close()
			return err
		}
	}
	// direct reply-to: consumir con auto-ack antes de publicar en el mismo canal
	replies, err := ch.Consume(replyQueue, "", true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp: consume %s: %w", replyQueue, err)
	}

	t.mu.Lock()
	t.conn, t.ch = conn, ch
	t.mu.Unlock()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go t.route(replies)
	go t.watch(closed, chClosed)

	t.log.Info("amqp connected", zap.Int("queues", len(t.cfg.Queues)))
	return nil
}

func (t *Transport) declare(ch *amqp.Channel) error {
	if dlx := t.cfg.Policy.DeadLetterExchange; dlx != "" {
		if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("amqp: declare dlx %s: %w", dlx, err)
		}
	}
	args := t.cfg.Policy.Args()
	for _, q := range t.cfg.Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return fmt.Errorf("amqp: declare queue %s: %w", q, err)
		}
	}
	return nil
}

// route entrega cada reply al request pendiente; replies sin dueño (request
// ya vencido) se descartan.
func (t *Transport) route(replies <-chan amqp.Delivery) {
	for d := range replies {
		t.pmu.Lock()
		w, ok := t.pending[d.CorrelationId]
		if ok {
			delete(t.pending, d.CorrelationId)
		}
		t.pmu.Unlock()
		if !ok {
			t.log.Debug("amqp late reply dropped", zap.String("correlation_id", d.CorrelationId))
			continue
		}
		w <- d
	}
}

func (t *Transport) watch(connClosed, chClosed <-chan *amqp.Error) {
	var reason *amqp.Error
	select {
	case reason = <-connClosed:
	case reason = <-chClosed:
	case <-t.done:
		return
	}
	t.failPending()

	select {
	case <-t.done:
		return
	default:
	}
	t.log.Warn("amqp connection lost; reconnecting", zap.Any("reason", reason))

	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn, t.ch = nil, nil
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()
	if err := t.connectWithRetry(ctx); err != nil {
		t.log.Error("amqp reconnect aborted", logger.Err(err))
	}
}

// failPending cierra todos los waiters; Request lo traduce a ErrChannelClosed.
func (t *Transport) failPending() {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	for id, w := range t.pending {
		close(w)
		delete(t.pending, id)
	}
}

func (t *Transport) channel() *amqp.Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ch
}

// Request implementa rpc.Transport.
func (t *Transport) Request(ctx context.Context, ch rpc.Channel, env rpc.Envelope) (json.RawMessage, error) {
	queue, ok := t.cfg.Queues[ch]
	if !ok || queue == "" {
		return nil, rpc.NewError(500, fmt.Sprintf("no queue configured for channel %q", ch))
	}
	amqpCh := t.channel()
	if amqpCh == nil {
		return nil, fmt.Errorf("%w: not connected", rpc.ErrChannelClosed)
	}
	body, err := env.MarshalWire()
	if err != nil {
		return nil, err
	}

	wait := make(chan amqp.Delivery, 1)
	t.pmu.Lock()
	t.pending[env.ID] = wait
	t.pmu.Unlock()
	forget := func() {
		t.pmu.Lock()
		delete(t.pending, env.ID)
		t.pmu.Unlock()
	}

	t.pub.Lock()
	err = amqpCh.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: env.ID,
		MessageId:     env.ID,
		ReplyTo:       replyQueue,
		Timestamp:     time.Now(),
		Headers:       amqp.Table{"x-request-id": env.Meta.RequestID},
		Body:          body,
	})
	t.pub.Unlock()
	if err != nil {
		forget()
		if errors.Is(err, amqp.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", rpc.ErrChannelClosed, err)
		}
		return nil, fmt.Errorf("%w: publish: %v", rpc.ErrTransport, err)
	}

	select {
	case d, ok := <-wait:
		if !ok {
			return nil, fmt.Errorf("%w: connection lost while waiting for reply", rpc.ErrChannelClosed)
		}
		return broker.DecodeReply(env.ID, d.Body)
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// Ping reporta si hay un canal abierto.
func (t *Transport) Ping(ctx context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil || t.conn.IsClosed() {
		return fmt.Errorf("%w: not connected", rpc.ErrChannelClosed)
	}
	return nil
}

// Close detiene la reconexión y cierra la conexión. Idempotente.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		if t.conn != nil {
			err = t.conn.Close()
		}
		t.conn, t.ch = nil, nil
		t.mu.Unlock()
		t.failPending()
	})
	return err
}
