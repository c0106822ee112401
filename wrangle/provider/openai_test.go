package provider

import (
	"context"
	"errors"
	"testing"
)

func TestSentimentSchemaCompliance(t *testing.T) {
	t.Parallel()

	schema := sentimentSchema
	if schema[typeKey] != "object" {
		t.Fatalf("type=%v, want object", schema[typeKey])
	}
	if schema[additionalPropertiesKey] != false {
		t.Fatalf("additionalProperties=%v, want false", schema[additionalPropertiesKey])
	}

	props, ok := schema[propertiesKey].(map[string]interface{})
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	for _, field := range []string{"label", "score"} {
		if _, ok := props[field]; !ok {
			t.Fatalf("properties=%v, missing %s", props, field)
		}
	}

	required, ok := schema[requiredKey].([]string)
	if !ok || len(required) != 2 {
		t.Fatalf("required=%v, want both fields required", schema[requiredKey])
	}

	label := props["label"].(map[string]interface{})
	enum, ok := label["enum"].([]interface{})
	if !ok || len(enum) != 4 {
		t.Fatalf("label enum=%v, want the four labels", label["enum"])
	}
}

func TestWithRetry_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	boom := errors.New("400 bad request")
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err=%v calls=%d, want immediate failure without retries", err, calls)
	}
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	calls := 0
	if err := withRetry(context.Background(), func() error {
		calls++
		return nil
	}); err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d, want one successful call", err, calls)
	}
}

func TestWithRetry_CanceledDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, func() error {
		return errors.New("500 internal server error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	if !isRateLimitError(errors.New("HTTP 429 Too Many Requests")) {
		t.Fatal("429 not classified as rate limit")
	}
	if !isServerError(errors.New("500 Internal Server Error")) {
		t.Fatal("500 not classified as server error")
	}
	if isRateLimitError(errors.New("404 not found")) || isServerError(errors.New("404 not found")) {
		t.Fatal("404 misclassified as retryable")
	}
	if isRateLimitError(nil) || isServerError(nil) {
		t.Fatal("nil error misclassified")
	}
}

func TestTranscriber_NilClient(t *testing.T) {
	t.Parallel()

	tr := Transcriber{Client: nil, Model: "whisper-1"}
	if _, err := tr.Transcribe(context.Background(), "/nope"); err == nil {
		t.Fatal("want error for nil client")
	}
}
