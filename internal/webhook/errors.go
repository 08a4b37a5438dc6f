package webhook

import "errors"

// ErrAlreadyProcessed is returned when a message id already has a ledger entry.
var ErrAlreadyProcessed = errors.New("webhook message already processed")
