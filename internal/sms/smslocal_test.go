package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	if client.APIKey != "api-key" {
		t.Errorf("APIKey = %q, want %q", client.APIKey, "api-key")
	}
	if client.BaseURL != "https://www.smslocal.com/dev/bulkV2" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
	if client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient.Timeout = %v, want %v", client.HTTPClient.Timeout, defaultTimeout)
	}
}

func TestSendCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want %q", r.Method, http.MethodPost)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q, want test-api-key", r.Header.Get("Authorization"))
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["route"] != "otp" {
			t.Errorf("route = %v, want otp", body["route"])
		}
		if body["numbers"] != "+15551234567" {
			t.Errorf("numbers = %v, want +15551234567", body["numbers"])
		}
		if body["variables"] != "123456" {
			t.Errorf("variables = %v, want 123456", body["variables"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "")
	if err := client.SendCode(context.Background(), "+15551234567", "123456"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
}

func TestSendCode_MissingAPIKey(t *testing.T) {
	client := NewSMSLocalClient("", "", "")
	if err := client.SendCode(context.Background(), "+15551234567", "123456"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestSendCode_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":"error"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "")
	if err := client.SendCode(context.Background(), "+15551234567", "123456"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

type flakyNotifier struct {
	failures int32
	calls    int32
}

func (f *flakyNotifier) SendCode(ctx context.Context, phone, code string) error {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return errors.New("gateway unavailable")
	}
	return nil
}

func TestRetryingNotifier_RecoversAfterFailure(t *testing.T) {
	inner := &flakyNotifier{failures: 2}
	n := NewRetryingNotifier(inner, 3, time.Millisecond)
	if err := n.SendCode(context.Background(), "+15551234567", "123456"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	if got := atomic.LoadInt32(&inner.calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetryingNotifier_GivesUp(t *testing.T) {
	inner := &flakyNotifier{failures: 10}
	n := NewRetryingNotifier(inner, 3, time.Millisecond)
	if err := n.SendCode(context.Background(), "+15551234567", "123456"); err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	if got := atomic.LoadInt32(&inner.calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}
