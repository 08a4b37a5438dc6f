package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fraudguard/fraudguard/internal/webhook"
)

// Sends a signed identity webhook to a running server, for local testing
// of the sync path without the identity provider.
func main() {
	var (
		target    = flag.String("url", "http://localhost:8080/api/webhooks/clerk", "Webhook endpoint")
		secret    = flag.String("secret", os.Getenv("CLERK_WEBHOOK_SECRET"), "Shared signing secret (whsec_...)")
		eventType = flag.String("type", "user.created", "Event type: user.created, user.updated or user.deleted")
		userID    = flag.String("user-id", "user_local_test", "Subject id placed in data.id")
		email     = flag.String("email", "local@example.com", "Primary email address")
		firstName = flag.String("first-name", "Local", "First name")
		messageID = flag.String("message-id", "", "svix-id to send (default: fresh ULID; reuse one to test replay)")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "CLERK_WEBHOOK_SECRET or -secret is required")
		os.Exit(1)
	}
	if *messageID == "" {
		*messageID = "msg_" + ulid.Make().String()
	}

	data := map[string]any{"id": *userID}
	if *eventType != "user.deleted" {
		data["first_name"] = *firstName
		data["email_addresses"] = []map[string]string{{"email_address": *email}}
	} else {
		data["deleted"] = true
	}

	body, err := json.Marshal(map[string]any{
		"type":   *eventType,
		"object": "event",
		"data":   data,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode event: %v\n", err)
		os.Exit(1)
	}

	ts := time.Now().Unix()
	signature, err := webhook.Sign(*secret, *messageID, ts, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign event: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *target, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderMessageID, *messageID)
	req.Header.Set(webhook.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(webhook.HeaderSignature, signature)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "send webhook: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Printf("%s %s\nsvix-id: %s\n%s\n", resp.Proto, resp.Status, *messageID, bytes.TrimSpace(respBody))

	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}
