// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/tomtom215/toolagent/internal/metrics"
)

// Dead-letter headers.
const (
	HeaderReason          = "Toolagent-Reason"
	HeaderOriginalSubject = "Toolagent-Original-Subject"
	HeaderStreamSeq       = "Toolagent-Stream-Seq"
	HeaderNumDelivered    = "Toolagent-Num-Delivered"
)

// DeadLetterer receives payloads that can never be processed.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg Msg, reason string) error
}

// Publisher is the part of the connection manager the dead-letter publisher needs.
type Publisher interface {
	Current() (*nats.Conn, error)
}

// DeadLetterPublisher publishes poison payloads on core NATS to a fixed subject.
type DeadLetterPublisher struct {
	conns   Publisher
	subject string
}

// NewDeadLetterPublisher publishes to subject, normally IdentityFor(id).DeadLetter.
func NewDeadLetterPublisher(conns Publisher, subject string) *DeadLetterPublisher {
	return &DeadLetterPublisher{conns: conns, subject: subject}
}

// DeadLetter publishes the original payload with diagnostic headers.
func (p *DeadLetterPublisher) DeadLetter(_ context.Context, msg Msg, reason string) error {
	nc, err := p.conns.Current()
	if err != nil {
		return err
	}

	out := nats.NewMsg(p.subject)
	out.Data = msg.Data()
	out.Header.Set(HeaderReason, reason)
	out.Header.Set(HeaderOriginalSubject, msg.Subject())
	if md, err := msg.Metadata(); err == nil && md != nil {
		out.Header.Set(HeaderStreamSeq, strconv.FormatUint(md.Sequence.Stream, 10))
		out.Header.Set(HeaderNumDelivered, strconv.FormatUint(md.NumDelivered, 10))
	}

	if err := nc.PublishMsg(out); err != nil {
		return fmt.Errorf("publish dead letter to %s: %w", p.subject, err)
	}
	metrics.BusDeadLettered.Inc()
	return nil
}
