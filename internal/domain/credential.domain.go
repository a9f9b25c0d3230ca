package domain

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base32"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	xerrors "payauth-service/pkg/xerrors"
)

type CredentialType string

const (
	CredentialPIN               CredentialType = "pin"
	CredentialDeviceKey         CredentialType = "device_key"
	CredentialFace              CredentialType = "face"
	CredentialVoice             CredentialType = "voice"
	CredentialLegacyFingerprint CredentialType = "legacy_fingerprint"
	CredentialTOTP              CredentialType = "totp"
)

// Assurance classifies how strong a verification method is, so downstream
// risk decisions (e.g. transaction limits) can differ by method strength.
type Assurance string

const (
	AssuranceHardware  Assurance = "hardware"  // key material never leaves the authenticator
	AssuranceBiometric Assurance = "biometric" // embedding similarity
	AssuranceApp       Assurance = "app"       // authenticator-app TOTP
	AssuranceKnowledge Assurance = "knowledge" // secret the user knows
	AssuranceLow       Assurance = "low"       // opaque-template fallback, demo grade
)

func (t CredentialType) Assurance() Assurance {
	switch t {
	case CredentialDeviceKey:
		return AssuranceHardware
	case CredentialFace:
		return AssuranceBiometric
	case CredentialTOTP:
		return AssuranceApp
	case CredentialPIN:
		return AssuranceKnowledge
	default:
		return AssuranceLow
	}
}

func (t CredentialType) Valid() bool {
	switch t {
	case CredentialPIN, CredentialDeviceKey, CredentialFace,
		CredentialVoice, CredentialLegacyFingerprint, CredentialTOTP:
		return true
	}
	return false
}

// Credential is one proof-of-identity enrollment. Template is opaque to
// everything except the matching verifier.
type Credential struct {
	ID         string         `json:"id"`
	AccountID  string         `json:"account_id"`
	Type       CredentialType `json:"type"`
	Template   []byte         `json:"-"`
	Label      string         `json:"label"`
	IsActive   bool           `json:"is_active"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// FaceEmbeddingDim is the fixed embedding length accepted at enrollment and
// verification. Vectors of any other length fail template validation.
const FaceEmbeddingDim = 128

// MaxOpaqueTemplateSize bounds voice/legacy blobs (64 KiB).
const MaxOpaqueTemplateSize = 64 << 10

// DeviceKeyTemplate is the stored reference for a device-bound public-key
// credential: the authenticator-assigned credential id plus the public key.
type DeviceKeyTemplate struct {
	CredentialID string `json:"credential_id"`
	PublicKeyPEM string `json:"public_key_pem"`
}

func (t *DeviceKeyTemplate) PublicKey() (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(t.PublicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("device key template: no PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("device key template: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("device key template: not an ECDSA public key")
	}
	return ecPub, nil
}

// ValidateTemplate enforces the type-specific shape of a template before it
// is persisted. The PIN type is intentionally rejected: the transaction PIN
// hash lives on the account record, not in the credential store.
func ValidateTemplate(t CredentialType, template []byte) error {
	switch t {
	case CredentialPIN:
		return fmt.Errorf("%w: pin is managed on the account, not enrolled as a credential", xerrors.ErrInvalidTemplate)
	case CredentialDeviceKey:
		var tpl DeviceKeyTemplate
		if err := json.Unmarshal(template, &tpl); err != nil {
			return fmt.Errorf("%w: %v", xerrors.ErrInvalidTemplate, err)
		}
		if strings.TrimSpace(tpl.CredentialID) == "" {
			return fmt.Errorf("%w: empty credential identifier", xerrors.ErrInvalidTemplate)
		}
		if _, err := tpl.PublicKey(); err != nil {
			return fmt.Errorf("%w: %v", xerrors.ErrInvalidTemplate, err)
		}
		return nil
	case CredentialFace:
		if _, err := ParseFaceEmbedding(template); err != nil {
			return err
		}
		return nil
	case CredentialVoice, CredentialLegacyFingerprint:
		if len(template) == 0 {
			return fmt.Errorf("%w: empty template", xerrors.ErrInvalidTemplate)
		}
		if len(template) > MaxOpaqueTemplateSize {
			return fmt.Errorf("%w: template exceeds %d bytes", xerrors.ErrInvalidTemplate, MaxOpaqueTemplateSize)
		}
		return nil
	case CredentialTOTP:
		secret := strings.ToUpper(strings.TrimSpace(string(template)))
		if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret); err != nil {
			return fmt.Errorf("%w: secret is not base32", xerrors.ErrInvalidTemplate)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown credential type %q", xerrors.ErrInvalidTemplate, t)
	}
}

// ParseFaceEmbedding decodes a JSON numeric vector and checks its dimension.
func ParseFaceEmbedding(raw []byte) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("%w: embedding is not a numeric vector", xerrors.ErrInvalidTemplate)
	}
	if len(vec) != FaceEmbeddingDim {
		return nil, fmt.Errorf("%w: embedding must have %d dimensions, got %d", xerrors.ErrInvalidTemplate, FaceEmbeddingDim, len(vec))
	}
	return vec, nil
}
