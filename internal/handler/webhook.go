package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fraudguard/fraudguard/internal/handler/dto"
	"github.com/fraudguard/fraudguard/internal/identity"
	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/middleware"
	"github.com/fraudguard/fraudguard/internal/webhook"
)

// EventProcessor applies a verified webhook body exactly once per message id.
type EventProcessor interface {
	Process(ctx context.Context, messageID string, body []byte) (identity.Outcome, error)
}

// SignatureVerifier checks webhook signatures over raw body bytes.
type SignatureVerifier interface {
	Verify(body []byte, h webhook.Headers) error
}

// WebhookHandler receives identity-provider webhooks.
type WebhookHandler struct {
	verifier  SignatureVerifier
	processor EventProcessor
	logger    *slog.Logger
	metrics   metrics.Recorder
	maxBody   int64
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(verifier SignatureVerifier, processor EventProcessor, logger *slog.Logger, recorder metrics.Recorder, maxBody int64) *WebhookHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		logger:    logger.With("handler", "webhook"),
		metrics:   recorder,
		maxBody:   maxBody,
	}
}

// Receive handles POST /api/webhooks/clerk. The body is read as raw bytes
// and verified before anything parses it.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	headers := webhook.Headers{
		MessageID: r.Header.Get(webhook.HeaderMessageID),
		Timestamp: r.Header.Get(webhook.HeaderTimestamp),
		Signature: r.Header.Get(webhook.HeaderSignature),
	}
	log := h.logger.With(
		slog.String("message_id", headers.MessageID),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.metrics.IncWebhook(metrics.WebhookRejected)
		if middleware.IsBodyTooLarge(err) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeFailure(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	if err := h.verifier.Verify(body, headers); err != nil {
		switch {
		case errors.Is(err, webhook.ErrMissingHeaders):
			log.Warn("webhook rejected", slog.String("reason", "missing_headers"))
			h.metrics.IncWebhook(metrics.WebhookRejected)
			writeFailure(w, http.StatusBadRequest, "Missing required headers")
		case errors.Is(err, webhook.ErrSecretNotConfigured):
			log.Error("webhook secret not configured")
			h.metrics.IncWebhook(metrics.WebhookFailed)
			writeFailure(w, http.StatusInternalServerError, "Webhook secret not configured")
		default:
			log.Warn("webhook rejected", slog.String("reason", "invalid_signature"))
			h.metrics.IncWebhook(metrics.WebhookRejected)
			writeFailure(w, http.StatusUnauthorized, "Invalid signature")
		}
		return
	}

	out, err := h.processor.Process(r.Context(), headers.MessageID, body)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrMissingSubjectID):
			log.Warn("webhook rejected", slog.String("reason", "missing_user_id"), slog.String("event_type", out.EventType))
			h.metrics.IncWebhook(metrics.WebhookRejected)
			writeFailure(w, http.StatusBadRequest, "Missing user id")
		case errors.Is(err, identity.ErrMalformedEvent):
			log.Warn("webhook rejected", slog.String("reason", "malformed_event"))
			h.metrics.IncWebhook(metrics.WebhookRejected)
			writeFailure(w, http.StatusBadRequest, "Invalid webhook payload")
		default:
			log.Error("webhook processing failed",
				slog.String("event_type", out.EventType),
				slog.String("error", err.Error()),
			)
			h.metrics.IncWebhook(metrics.WebhookFailed)
			writeFailure(w, http.StatusInternalServerError, "Webhook processing failed")
		}
		return
	}

	if out.Duplicate {
		log.Info("duplicate webhook ignored")
		h.metrics.IncWebhook(metrics.WebhookDuplicate)
		writeJSON(w, http.StatusOK, dto.WebhookResponse{Success: true, Duplicate: true})
		return
	}

	log.Info("webhook processed",
		slog.String("event_type", out.EventType),
		slog.String("user_id", out.SubjectID),
	)
	h.metrics.IncWebhook(metrics.WebhookProcessed)
	writeJSON(w, http.StatusOK, dto.WebhookResponse{Success: true})
}
