// Package attrcrypt implements the attribute encryption hook (spec.md
// §4.7): entry-level encrypt/decrypt on the id2entry value path, and
// index-key encryption for attributes carrying an encryption
// descriptor. The core never generates or stores key material itself —
// it only holds a Provider handle per attribute.
package attrcrypt

import (
	"context"

	"github.com/dirserv/ldbm/internal/entry"
)

// Provider is polymorphic over {key material source, cipher}, per
// spec.md §4.7. It satisfies internal/index.KeyEncryptor structurally.
type Provider interface {
	// EncryptEntry returns an encrypted copy of e, used on the id2entry
	// write path.
	EncryptEntry(ctx context.Context, e *entry.Entry) (*entry.Entry, error)
	// DecryptEntry reverses EncryptEntry, used on the id2entry read path.
	DecryptEntry(ctx context.Context, e *entry.Entry) (*entry.Entry, error)
	// EncryptIndexKey encrypts one index key's value part for attrType.
	EncryptIndexKey(attrType string, value []byte) ([]byte, error)
}

// NoopProvider performs no encryption; it is the default when no
// attrcrypt configuration names a cipher for a given attribute.
type NoopProvider struct{}

func (NoopProvider) EncryptEntry(_ context.Context, e *entry.Entry) (*entry.Entry, error) {
	return e, nil
}

func (NoopProvider) DecryptEntry(_ context.Context, e *entry.Entry) (*entry.Entry, error) {
	return e, nil
}

func (NoopProvider) EncryptIndexKey(_ string, value []byte) ([]byte, error) {
	return value, nil
}
