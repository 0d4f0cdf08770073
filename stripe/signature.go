package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSignature is returned for any webhook signature failure. Callers map it
// to a 400 and must not run fulfillment.
var ErrSignature = errors.New("stripe: webhook signature verification failed")

// SignatureOptions controls timestamp tolerance. Zero Tolerance means the
// default 10 minutes. Stale timestamps are rejected unless WarnOnlyOutsideTolerance
// is set; the zero value rejects.
type SignatureOptions struct {
	Tolerance                time.Duration
	WarnOnlyOutsideTolerance bool
	Now                      func() time.Time
}

const defaultTolerance = 10 * time.Minute

// VerifySignature checks a provider signature header of the form
// "t=<unix>,v1=<hex>[,v1=<hex>...]" against HMAC-SHA256 of
// "<timestamp>.<raw body>". All presented v1 signatures are tried in
// constant time; any match succeeds.
func VerifySignature(payload []byte, sigHeader, secret string, opts SignatureOptions) error {
	if sigHeader == "" {
		return fmt.Errorf("%w: missing signature header", ErrSignature)
	}
	if secret == "" {
		// not an attack, a deployment problem: callers report this as
		// misconfiguration, not as a rejected webhook
		return fmt.Errorf("%w: no webhook signing secret", ErrConfig)
	}

	var timestampStr string
	var v1Signatures []string
	for _, item := range strings.Split(sigHeader, ",") {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			timestampStr = parts[1]
		case "v1":
			v1Signatures = append(v1Signatures, parts[1])
		}
	}

	if timestampStr == "" {
		return fmt.Errorf("%w: missing timestamp", ErrSignature)
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", ErrSignature)
	}
	if len(v1Signatures) == 0 {
		return fmt.Errorf("%w: no v1 signature", ErrSignature)
	}

	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	drift := now().Unix() - timestamp
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > tolerance {
		if !opts.WarnOnlyOutsideTolerance {
			return fmt.Errorf("%w: timestamp outside tolerance (%ds)", ErrSignature, drift)
		}
		// warn-only mode tolerated for staging; production rejects
	}

	// The signed payload uses the header's original timestamp string and the
	// raw body bytes, never a re-serialized form.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestampStr))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, presented := range v1Signatures {
		if hmac.Equal([]byte(expected), []byte(presented)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrSignature)
}

// Sign produces a valid signature header for the given payload; used by the
// in-memory provider double and tests.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
