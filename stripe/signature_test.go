package stripe

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	header := Sign(payload, secret, at)
	err := VerifySignature(payload, header, secret, SignatureOptions{
		Now: func() time.Time { return at.Add(30 * time.Second) },
	})
	if err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureForged(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	at := time.Now()

	header := Sign(payload, "whsec_other", at)
	err := VerifySignature(payload, header, "whsec_test", SignatureOptions{})
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("forged signature: got %v, want ErrSignature", err)
	}
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	secret := "whsec_test"
	at := time.Now()
	header := Sign([]byte(`{"amount":100}`), secret, at)

	err := VerifySignature([]byte(`{"amount":999}`), header, secret, SignatureOptions{})
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("tampered body: got %v, want ErrSignature", err)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	header := Sign(payload, secret, at)

	// the zero-value policy rejects stale timestamps
	opts := SignatureOptions{
		Tolerance: 10 * time.Minute,
		Now:       func() time.Time { return at.Add(11 * time.Minute) },
	}
	if err := VerifySignature(payload, header, secret, opts); !errors.Is(err, ErrSignature) {
		t.Fatalf("stale timestamp with default policy: got %v, want ErrSignature", err)
	}

	// warn-only mode must be opted into and accepts the same
	// stale-but-authentic signature
	opts.WarnOnlyOutsideTolerance = true
	if err := VerifySignature(payload, header, secret, opts); err != nil {
		t.Fatalf("stale timestamp in warn-only mode: %v", err)
	}
}

func TestVerifySignatureMissingSecretIsConfigError(t *testing.T) {
	payload := []byte(`{}`)
	header := Sign(payload, "whsec_test", time.Now())

	err := VerifySignature(payload, header, "", SignatureOptions{})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("got %v, want ErrConfig", err)
	}
	if errors.Is(err, ErrSignature) {
		t.Fatal("missing secret must not read as a signature failure")
	}
}

func TestVerifySignatureMalformedHeaders(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	valid := Sign(payload, secret, time.Now())
	v1 := strings.SplitN(valid, ",", 2)[1]

	cases := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"missing timestamp", v1},
		{"missing v1", "t=1741600000"},
		{"garbage timestamp", "t=abc," + v1},
		{"no separators", "nonsense"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifySignature(payload, tc.header, secret, SignatureOptions{})
			if !errors.Is(err, ErrSignature) {
				t.Fatalf("got %v, want ErrSignature", err)
			}
		})
	}
}

func TestVerifySignatureMultipleV1(t *testing.T) {
	payload := []byte(`{"id":"evt_multi"}`)
	secret := "whsec_test"
	at := time.Now()
	valid := Sign(payload, secret, at)
	v1 := strings.SplitN(valid, ",v1=", 2)[1]
	ts := strings.SplitN(strings.TrimPrefix(valid, "t="), ",", 2)[0]

	// stale rotation sig first, current one second
	header := "t=" + ts + ",v1=" + strings.Repeat("0", 64) + ",v1=" + v1
	if err := VerifySignature(payload, header, secret, SignatureOptions{}); err != nil {
		t.Fatalf("any-match across v1 signatures: %v", err)
	}
}
