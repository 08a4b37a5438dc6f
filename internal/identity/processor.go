package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fraudguard/fraudguard/internal/webhook"
)

// Ledger records applied message ids.
type Ledger interface {
	HasProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// Outcome describes what Process did with a delivery.
type Outcome struct {
	Duplicate bool
	EventType string
	SubjectID string
}

// Processor applies each verified delivery at most once.
type Processor struct {
	ledger Ledger
	sync   *Synchronizer
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(ledger Ledger, sync *Synchronizer, logger *slog.Logger) *Processor {
	return &Processor{ledger: ledger, sync: sync, logger: logger}
}

// Process handles one verified delivery. The body must already have passed
// signature verification.
//
// The ledger entry is written only after the mutation succeeds. A crash in
// between leads to a re-application on redelivery, which is safe because
// upsert and delete are idempotent.
func (p *Processor) Process(ctx context.Context, messageID string, body []byte) (Outcome, error) {
	seen, err := p.ledger.HasProcessed(ctx, messageID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check ledger: %w", err)
	}
	if seen {
		return Outcome{Duplicate: true}, nil
	}

	event, err := DecodeEvent(body)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{EventType: event.Type}
	out.SubjectID, err = p.sync.Apply(ctx, event)
	if err != nil {
		return out, err
	}

	if err := p.ledger.MarkProcessed(ctx, messageID); err != nil {
		if errors.Is(err, webhook.ErrAlreadyProcessed) {
			p.logger.Info("concurrent delivery already recorded",
				slog.String("message_id", messageID),
			)
			out.Duplicate = true
			return out, nil
		}
		return out, fmt.Errorf("record ledger entry: %w", err)
	}

	return out, nil
}
