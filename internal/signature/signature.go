package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/frahmantamala/pagepay/internal"
)

const (
	FieldSign     = "sign"
	FieldSignType = "sign_type"

	ReasonMissingSignature = "missing signature"
	ReasonInvalidSignature = "invalid signature"
)

// Params is a flat gateway parameter set. Absent and null values are both
// represented by a missing key.
type Params map[string]string

// ParamsFromValues keeps the first value of every key.
func ParamsFromValues(values url.Values) Params {
	p := make(Params, len(values))
	for k, v := range values {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	return p
}

// ParamsFromMap drops nil values and stringifies the rest.
func ParamsFromMap(m map[string]any) Params {
	p := make(Params, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			p[k] = val
		case fmt.Stringer:
			p[k] = val.String()
		default:
			p[k] = fmt.Sprint(val)
		}
	}
	return p
}

func (p Params) Get(key string) string {
	return p[key]
}

func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Without returns a copy minus the given keys.
func (p Params) Without(keys ...string) Params {
	c := p.Clone()
	for _, k := range keys {
		delete(c, k)
	}
	return c
}

// CanonicalString drops empty values and the sign key, sorts the remaining
// keys by byte order and joins raw key=value pairs with '&'. The result is
// the exact input to signing and verification.
func CanonicalString(params Params) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == FieldSign || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Sign produces a base64 RSA PKCS#1 v1.5 SHA-256 signature. PKCS#1 v1.5 is
// deterministic: the same params and key always give the same signature.
func Sign(params Params, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", internal.NewSigningError(errors.New("private key is not configured"))
	}

	digest := sha256.Sum256([]byte(CanonicalString(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", internal.NewSigningError(err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignWithKey parses key material on the fly. Unreadable material is a
// signing failure.
func SignWithKey(params Params, keyMaterial string) (string, error) {
	key, err := ParsePrivateKey(keyMaterial)
	if err != nil {
		return "", internal.NewSigningError(err)
	}
	return Sign(params, key)
}

// Verify never returns an error: a nil key, malformed base64 or a wrong
// signature are all just false.
func Verify(params Params, signature string, key *rsa.PublicKey) bool {
	if key == nil || signature == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	digest := sha256.Sum256([]byte(CanonicalString(params)))
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
}

type CallbackVerification struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// VerifyCallback authenticates a gateway callback. sign and sign_type are
// both excluded from the signed content.
func VerifyCallback(params Params, key *rsa.PublicKey) CallbackVerification {
	sig := params[FieldSign]
	if sig == "" {
		return CallbackVerification{Valid: false, Reason: ReasonMissingSignature}
	}

	if !Verify(params.Without(FieldSign, FieldSignType), sig, key) {
		return CallbackVerification{Valid: false, Reason: ReasonInvalidSignature}
	}
	return CallbackVerification{Valid: true}
}
