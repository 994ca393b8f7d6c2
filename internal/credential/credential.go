// Package credential issues and verifies the check-in token carried by a
// ticket's QR code.
//
// Wire format is base64url(payload || mac): payload is the claim set in
// CBOR core deterministic encoding, mac is a 32-byte BLAKE3 keyed hash of
// the payload. Verification needs only the token and the server secret.
package credential

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	apperrors "ticketgate/internal/errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const (
	version = 1
	macSize = 32

	keyContext = "ticketgate 2026-01 check-in credential MAC key"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("credential: CBOR encoder initialization failed: " + err.Error())
	}
}

// Subject is what a credential authorizes: one ticket of one attendee for
// one event.
type Subject struct {
	EventID  uuid.UUID
	UserID   uuid.UUID
	TicketID uuid.UUID
}

type Claims struct {
	Version   int       `cbor:"v"`
	EventID   uuid.UUID `cbor:"e"`
	UserID    uuid.UUID `cbor:"u"`
	TicketID  uuid.UUID `cbor:"t"`
	ExpiresAt int64     `cbor:"exp"`
}

func (c *Claims) Subject() Subject {
	return Subject{EventID: c.EventID, UserID: c.UserID, TicketID: c.TicketID}
}

type Issuer struct {
	key [32]byte
	now func() time.Time
}

// NewIssuer derives the MAC key from secret. An empty secret is rejected.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential: secret must not be empty")
	}

	issuer := &Issuer{now: time.Now}
	blake3.DeriveKey(keyContext, []byte(secret), issuer.key[:])
	return issuer, nil
}

// Issue signs a credential for subject valid until expiresAt. The token
// depends only on subject, expiresAt and the secret.
func (i *Issuer) Issue(subject Subject, expiresAt time.Time) (string, error) {
	claims := Claims{
		Version:   version,
		EventID:   subject.EventID,
		UserID:    subject.UserID,
		TicketID:  subject.TicketID,
		ExpiresAt: expiresAt.Unix(),
	}

	payload, err := encMode.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("credential: encoding claims: %w", err)
	}

	mac, err := i.mac(payload)
	if err != nil {
		return "", err
	}

	token := make([]byte, 0, len(payload)+macSize)
	token = append(token, payload...)
	token = append(token, mac...)

	return base64.RawURLEncoding.EncodeToString(token), nil
}

func (i *Issuer) Verify(token string) (*Claims, error) {
	return i.VerifyAt(token, i.now())
}

// VerifyAt is Verify with an explicit clock. Every failure is reported as
// ErrInvalidCredential.
func (i *Issuer) VerifyAt(token string, now time.Time) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= macSize {
		return nil, apperrors.ErrInvalidCredential
	}

	split := len(raw) - macSize
	payload, mac := raw[:split], raw[split:]

	expected, err := i.mac(payload)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(mac, expected) != 1 {
		return nil, apperrors.ErrInvalidCredential
	}

	var claims Claims
	if err := cbor.Unmarshal(payload, &claims); err != nil {
		return nil, apperrors.ErrInvalidCredential
	}
	if claims.Version != version {
		return nil, apperrors.ErrInvalidCredential
	}
	if now.Unix() >= claims.ExpiresAt {
		return nil, apperrors.ErrInvalidCredential
	}

	return &claims, nil
}

func (i *Issuer) mac(payload []byte) ([]byte, error) {
	hasher, err := blake3.NewKeyed(i.key[:])
	if err != nil {
		return nil, fmt.Errorf("credential: keyed hash initialization: %w", err)
	}
	hasher.Write(payload)
	return hasher.Sum(nil), nil
}
