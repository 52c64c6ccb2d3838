// Package events publishes settlement instructions for the on-chain
// execution layer over NATS.
package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/gamefrax/marketplace/internal/engine"
)

// SubjectSettlementInstruction carries engine.SettlementPayload as JSON
// with decimal-string amounts.
const SubjectSettlementInstruction = "settlement.instruction"

// Publisher wraps a NATS connection.
type Publisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

func NewPublisher(url string, log zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		conn: conn,
		log:  log.With().Str("component", "events").Logger(),
	}, nil
}

// PublishSettlementInstruction emits one settlement payload. Failures are
// returned to the caller, never swallowed; store state is untouched by a
// publish failure.
func (p *Publisher) PublishSettlementInstruction(payload engine.SettlementPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(SubjectSettlementInstruction, data); err != nil {
		p.log.Error().Err(err).Str("match_id", payload.MatchID).Msg("publish settlement instruction failed")
		return err
	}
	p.log.Debug().Str("match_id", payload.MatchID).Msg("settlement instruction published")
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
