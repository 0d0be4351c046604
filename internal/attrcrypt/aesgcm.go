package attrcrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/dirserv/ldbm/internal/entry"
)

// AESGCMProvider encrypts per-attribute values with AES-GCM. It holds a
// single key and a set of attribute types to encrypt; the core treats it
// as an opaque Provider and never inspects the key.
type AESGCMProvider struct {
	key          []byte
	attrs        map[string]bool
	indexEncrypt bool // whether index keys for these attrs get encrypted too
}

// NewAESGCMProvider builds a provider for the given attribute types using
// key (must be 16, 24, or 32 bytes — AES-128/192/256). indexEncrypt
// controls whether EncryptIndexKey actually encrypts or passes through;
// the specification allows BE_INDEX_DONT_ENCRYPT to bypass key
// encryption per call even when the attribute is configured for it, so
// this is a provider-level default, not an absolute.
func NewAESGCMProvider(key []byte, attrs []string, indexEncrypt bool) (*AESGCMProvider, error) {
	if _, err := aes.NewCipher(key); err != nil {
		return nil, fmt.Errorf("attrcrypt: invalid key: %w", err)
	}
	set := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		set[a] = true
	}
	return &AESGCMProvider{key: key, attrs: set, indexEncrypt: indexEncrypt}, nil
}

func (p *AESGCMProvider) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (p *AESGCMProvider) seal(plaintext []byte) ([]byte, error) {
	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (p *AESGCMProvider) open(ciphertext []byte) ([]byte, error) {
	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("attrcrypt: ciphertext too short")
	}
	nonce, data := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, data, nil)
}

func (p *AESGCMProvider) EncryptEntry(_ context.Context, e *entry.Entry) (*entry.Entry, error) {
	out := e.Clone()
	for attrType := range p.attrs {
		vals := out.Get(attrType)
		if len(vals) == 0 {
			continue
		}
		enc := make([]entry.Value, len(vals))
		for i, v := range vals {
			ct, err := p.seal([]byte(v))
			if err != nil {
				return nil, fmt.Errorf("attrcrypt: encrypt %s: %w", attrType, err)
			}
			enc[i] = entry.Value(ct)
		}
		out.Attrs[attrType] = enc
	}
	return out, nil
}

func (p *AESGCMProvider) DecryptEntry(_ context.Context, e *entry.Entry) (*entry.Entry, error) {
	out := e.Clone()
	for attrType := range p.attrs {
		vals := out.Get(attrType)
		if len(vals) == 0 {
			continue
		}
		dec := make([]entry.Value, len(vals))
		for i, v := range vals {
			pt, err := p.open([]byte(v))
			if err != nil {
				return nil, fmt.Errorf("attrcrypt: decrypt %s: %w", attrType, err)
			}
			dec[i] = entry.Value(pt)
		}
		out.Attrs[attrType] = dec
	}
	return out, nil
}

// EncryptIndexKey seals value with a random nonce, same as EncryptEntry.
// This makes the resulting key opaque but not equality-searchable across
// separate calls with the same plaintext; a real index-key provider
// needs a deterministic or order-preserving scheme instead of GCM.
// AESGCMProvider exists to exercise the Provider plumbing end to end, not
// as a production index-encryption recommendation.
func (p *AESGCMProvider) EncryptIndexKey(attrType string, value []byte) ([]byte, error) {
	if !p.indexEncrypt || !p.attrs[attrType] {
		return value, nil
	}
	return p.seal(value)
}
