// Package token packs payloads into signed opaque strings.
//
// A token is base64(JSON(payload)) + "." + signature, where the signature
// is computed over the encoded payload and a secret. Decoding never fails
// loudly: a malformed, truncated or tampered token simply yields no data,
// so callers can fall back to a fresh state.
package token

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Separator splits the payload from its signature.
const Separator = "."

// Signer computes the signature of an encoded payload.
type Signer interface {
	Sign(encoded, secret string) string
}

// SignerFunc adapts a function into a Signer.
type SignerFunc func(encoded, secret string) string

// Sign implements Signer.
func (f SignerFunc) Sign(encoded, secret string) string { return f(encoded, secret) }

var (
	// SHA1 signs with hex(sha1(encoded + secret)), the legacy token format.
	SHA1 Signer = SignerFunc(func(encoded, secret string) string {
		sum := sha1.Sum([]byte(encoded + secret))
		return hex.EncodeToString(sum[:])
	})

	// HMACSHA256 signs with hex(HMAC-SHA256(secret, encoded)).
	HMACSHA256 Signer = SignerFunc(func(encoded, secret string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(encoded))
		return hex.EncodeToString(mac.Sum(nil))
	})

	// Blake2b signs with hex(BLAKE2b-256 keyed by secret). Secrets longer
	// than 64 bytes are hashed down first.
	Blake2b Signer = SignerFunc(func(encoded, secret string) string {
		key := []byte(secret)
		if len(key) > blake2b.Size {
			sum := blake2b.Sum512(key)
			key = sum[:]
		}
		h, err := blake2b.New256(key)
		if err != nil {
			panic(err) // unreachable: the key fits
		}
		h.Write([]byte(encoded))
		return hex.EncodeToString(h.Sum(nil))
	})
)

// SignerByName returns a signer by configuration name:
// "sha1" (or empty), "hmac-sha256" or "blake2b".
func SignerByName(name string) (Signer, error) {
	switch strings.ToLower(name) {
	case "", "sha1":
		return SHA1, nil
	case "hmac-sha256", "hmac":
		return HMACSHA256, nil
	case "blake2b":
		return Blake2b, nil
	}
	return nil, fmt.Errorf("token: unknown signer %q", name)
}

// Codec packs and unpacks tokens with a fixed secret.
// It is safe for concurrent use.
type Codec struct {
	secret string
	signer Signer
	logger *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithSigner sets the signature algorithm. The default is SHA1.
func WithSigner(s Signer) Option {
	return func(c *Codec) {
		if s != nil {
			c.signer = s
		}
	}
}

// WithLogger sets the logger used to report rejected tokens.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCodec returns a codec signing with secret.
func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{secret: secret, signer: SHA1, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pack encodes payload and signs it.
func (c *Codec) Pack(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("token: encode payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return encoded + Separator + c.signer.Sign(encoded, c.secret), nil
}

var (
	errNotString = errors.New("token is not a string")
	errShape     = errors.New("missing signature")
	errSignature = errors.New("signature mismatch")
	errPayload   = errors.New("payload is not an object")
	errTrailing  = errors.New("trailing data after payload")
)

// Unpack verifies and decodes a token. It returns false, and no payload,
// when tok is not a string, is malformed, or fails verification. Numbers
// in the payload are json.Number, so 64-bit integers survive intact.
func (c *Codec) Unpack(tok any) (map[string]any, bool) {
	payload, err := c.decode(tok)
	if err != nil {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "token rejected",
			slog.String("reason", err.Error()))
		return nil, false
	}
	return payload, true
}

func (c *Codec) decode(tok any) (map[string]any, error) {
	s, ok := tok.(string)
	if !ok {
		return nil, errNotString
	}
	encoded, sig, ok := strings.Cut(s, Separator)
	if !ok || sig == "" {
		return nil, errShape
	}
	want := c.signer.Sign(encoded, c.secret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(sig)) != 1 {
		return nil, errSignature
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailing
	}
	if payload == nil {
		return nil, errPayload
	}
	return payload, nil
}

// Pack encodes payload with the legacy SHA1 signer.
func Pack(secret string, payload any) (string, error) {
	return NewCodec(secret).Pack(payload)
}

// Unpack decodes tok with the legacy SHA1 signer.
func Unpack(secret string, tok any) (map[string]any, bool) {
	return NewCodec(secret).Unpack(tok)
}
