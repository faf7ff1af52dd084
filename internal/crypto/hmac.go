package crypto

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

// SignatureHeader carries webhook signatures in the form
// "t=<unix seconds>,v1=<hex hmac>".
const SignatureHeader = "X-Signature"

var (
	ErrMalformedSignature = errors.New("crypto: malformed signature header")
	ErrSignatureExpired   = errors.New("crypto: signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("crypto: signature mismatch")
)

// SignWebhook returns the signature header value for body at ts. The MAC is
// HMAC-SHA256(secret, "<unix>." + body).
func SignWebhook(secret string, body []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + hmacSHA256Hex([]byte(secret), unix, body)
}

// VerifyWebhook checks header against body. Timestamps further than
// tolerance from now are rejected; a zero tolerance disables the check.
func VerifyWebhook(secret string, body []byte, header string, now time.Time, tolerance time.Duration) error {
	var unix string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			unix = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if unix == "" || len(sigs) == 0 {
		return ErrMalformedSignature
	}
	secs, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrMalformedSignature, err)
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(secs, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrSignatureExpired
		}
	}

	want := hmacSHA256Hex([]byte(secret), unix, body)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// hmacSHA256Hex computes HMAC-SHA256 over "<unix>.<body>" and hex-encodes it.
func hmacSHA256Hex(key []byte, unix string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(unix))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
