// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/metrics"
	"github.com/tomtom215/toolagent/internal/models"
)

// Msg is the subset of jetstream.Msg the listener uses.
type Msg interface {
	Data() []byte
	Subject() string
	Ack() error
	NakWithDelay(delay time.Duration) error
	InProgress() error
	Metadata() (*jetstream.MsgMetadata, error)
}

// Installer executes one installation command. A nil error means the
// command's effects are durable and the message may be acknowledged.
type Installer interface {
	Install(ctx context.Context, cmd *models.ToolInstallationCommand) error
}

// Connections is the part of the connection manager the listener needs.
type Connections interface {
	Wait(ctx context.Context) (*nats.Conn, error)
}

// Listener consumes this machine's command subject through a durable push
// consumer and dispatches each command to the installer.
type Listener struct {
	cfg        config.BusConfig
	conns      Connections
	installer  Installer
	deadLetter DeadLetterer
	identity   ConsumerIdentity
	logger     zerolog.Logger
}

// NewListener creates a listener for machineID. deadLetter may be nil, in
// which case poison messages are only logged before being dropped.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewListener(cfg config.BusConfig, machineID string, conns Connections, installer Installer, deadLetter DeadLetterer, logger zerolog.Logger) *Listener {
	return &Listener{
		cfg:        cfg,
		conns:      conns,
		installer:  installer,
		deadLetter: deadLetter,
		identity:   IdentityFor(machineID),
		logger:     logging.Component(logger, "listener"),
	}
}

// Identity returns the consumer identity used by the listener.
func (l *Listener) Identity() ConsumerIdentity {
	return l.identity
}

// Listen binds the durable consumer and processes messages until ctx is
// done, the consumer is lost, or the connection closes.
func (l *Listener) Listen(ctx context.Context) error {
	nc, err := l.conns.Wait(ctx)
	if err != nil {
		return err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	if l.cfg.EnsureStream {
		si, err := NewStreamInitializer(js, DefaultStreamConfig(l.cfg.StreamName))
		if err != nil {
			return err
		}
		if _, err := si.EnsureStream(ctx); err != nil {
			return err
		}
	}

	stream, err := js.Stream(ctx, l.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", l.cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdatePushConsumer(ctx, l.consumerConfig())
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", l.identity.DurableName, err)
	}

	// Unbuffered: the next delivery waits until the current one is handled.
	msgs := make(chan jetstream.Msg)
	cc, err := consumer.Consume(func(m jetstream.Msg) {
		select {
		case msgs <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", l.identity.DurableName, err)
	}
	defer cc.Stop()

	l.logger.Info().
		Str("stream", l.cfg.StreamName).
		Str("durable", l.identity.DurableName).
		Str("subject", l.identity.Subject).
		Msg("Listening for tool installation commands")

	interval := l.cfg.ConsumerCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-msgs:
			l.HandleMessage(ctx, m)
		case <-cc.Closed():
			metrics.BusConsumerLost.Inc()
			return ErrConsumerLost
		case <-ticker.C:
			if err := l.checkConsumer(ctx, nc, consumer); err != nil {
				return err
			}
		}
	}
}

func (l *Listener) consumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:           l.identity.DurableName,
		DeliverSubject:    l.identity.DeliverSubject,
		FilterSubject:     l.identity.Subject,
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: l.cfg.InactiveThreshold,
		AckWait:           l.cfg.AckWait,
		IdleHeartbeat:     l.cfg.IdleHeartbeat,
	}
}

// checkConsumer detects a consumer reclaimed by the server or a connection
// that closed underneath the listener.
func (l *Listener) checkConsumer(ctx context.Context, nc *nats.Conn, consumer jetstream.PushConsumer) error {
	if nc.IsClosed() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := consumer.Info(checkCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrConsumerNotFound), errors.Is(err, jetstream.ErrStreamNotFound):
		metrics.BusConsumerLost.Inc()
		l.logger.Warn().Str("durable", l.identity.DurableName).Msg("Durable consumer no longer exists")
		return ErrConsumerLost
	default:
		// Transient; the client is probably reconnecting.
		l.logger.Debug().Err(err).Msg("Consumer check failed")
		return nil
	}
}

// HandleMessage decodes and processes one delivery and returns the outcome
// recorded in metrics.
func (l *Listener) HandleMessage(ctx context.Context, msg Msg) string {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	ctx = logging.ContextWithLogger(ctx, l.logger)
	log := logging.Ctx(ctx)

	cmd, err := models.DecodeCommand(msg.Data())
	if err != nil {
		log.Error().Err(err).
			Str("subject", msg.Subject()).
			Int("bytes", len(msg.Data())).
			Msg("Dropping undecodable command")
		if l.cfg.DeadLetterEnabled && l.deadLetter != nil {
			if dlErr := l.deadLetter.DeadLetter(ctx, msg, err.Error()); dlErr != nil {
				log.Warn().Err(dlErr).Msg("Dead-letter publish failed")
			}
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn().Err(ackErr).Msg("Ack of dropped command failed")
		}
		metrics.RecordBusMessage(metrics.OutcomeDropped)
		return metrics.OutcomeDropped
	}

	log.Info().Str("tool_id", cmd.ToolID).Str("version", cmd.Version).Msg("Received tool installation command")

	stopProgress := l.keepInProgress(msg, log)
	err = l.installer.Install(ctx, cmd)
	stopProgress()
	if err != nil {
		log.Error().Err(err).
			Str("tool_id", cmd.ToolID).
			Str("version", cmd.Version).
			Dur("redelivery_delay", l.cfg.RedeliveryDelay).
			Msg("Installation failed, leaving command for redelivery")
		if l.cfg.RedeliveryDelay > 0 {
			if nakErr := msg.NakWithDelay(l.cfg.RedeliveryDelay); nakErr != nil {
				log.Warn().Err(nakErr).Msg("Nak failed, command will be redelivered after ack wait")
			}
		}
		metrics.RecordBusMessage(metrics.OutcomeRedeliver)
		return metrics.OutcomeRedeliver
	}

	if err := msg.Ack(); err != nil {
		// The install is idempotent; a redelivery just repeats it.
		log.Warn().Err(err).Str("tool_id", cmd.ToolID).Msg("Ack failed")
	}
	log.Info().Str("tool_id", cmd.ToolID).Str("version", cmd.Version).Msg("Command acknowledged")
	metrics.RecordBusMessage(metrics.OutcomeAcked)
	return metrics.OutcomeAcked
}

// keepInProgress resets the server's ack timer at a third of AckWait until
// the returned func is called, so a long install is not redelivered while it
// is still running. The func returns once no further InProgress can be sent.
func (l *Listener) keepInProgress(msg Msg, log *zerolog.Logger) func() {
	ackWait := l.cfg.AckWait
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(ackWait / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					log.Debug().Err(err).Msg("In-progress signal failed")
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// Serve implements suture.Service.
func (l *Listener) Serve(ctx context.Context) error {
	err := l.Listen(ctx)
	if errors.Is(err, ErrConsumerLost) || errors.Is(err, ErrNotConnected) {
		l.logger.Warn().Err(err).Msg("Listener stopped, rebinding")
	}
	return err
}

// String implements fmt.Stringer for suture logging.
func (l *Listener) String() string {
	return "command-listener"
}
