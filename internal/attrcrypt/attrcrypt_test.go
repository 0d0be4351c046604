package attrcrypt_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/dirserv/ldbm/internal/attrcrypt"
	"github.com/dirserv/ldbm/internal/entry"
)

func TestNoopProviderPassesThrough(t *testing.T) {
	ctx := context.Background()
	p := attrcrypt.NoopProvider{}
	e := entry.New("cn=alice,dc=example,dc=com")
	e.AddValues("userpassword", entry.Value("hunter2"))

	enc, err := p.EncryptEntry(ctx, e)
	if err != nil {
		t.Fatalf("EncryptEntry: %v", err)
	}
	if string(enc.Get("userpassword")[0]) != "hunter2" {
		t.Fatal("NoopProvider must not modify values")
	}

	key, err := p.EncryptIndexKey("userpassword", []byte("hunter2"))
	if err != nil {
		t.Fatalf("EncryptIndexKey: %v", err)
	}
	if !bytes.Equal(key, []byte("hunter2")) {
		t.Fatal("NoopProvider must pass the index key through unchanged")
	}
}

func TestAESGCMProviderRejectsBadKeySize(t *testing.T) {
	_, err := attrcrypt.NewAESGCMProvider([]byte("tooshort"), []string{"userpassword"}, false)
	if err == nil {
		t.Fatal("expected an error for a non-AES key size")
	}
}

func TestAESGCMProviderRoundTripsEntry(t *testing.T) {
	ctx := context.Background()
	key := bytes.Repeat([]byte{0x42}, 32)
	p, err := attrcrypt.NewAESGCMProvider(key, []string{"userpassword"}, false)
	if err != nil {
		t.Fatalf("NewAESGCMProvider: %v", err)
	}

	e := entry.New("cn=alice,dc=example,dc=com")
	e.AddValues("userpassword", entry.Value("hunter2"))
	e.AddValues("cn", entry.Value("alice"))

	enc, err := p.EncryptEntry(ctx, e)
	if err != nil {
		t.Fatalf("EncryptEntry: %v", err)
	}
	if bytes.Equal(enc.Get("userpassword")[0], []byte("hunter2")) {
		t.Fatal("encrypted value must not equal the plaintext")
	}
	if string(enc.Get("cn")[0]) != "alice" {
		t.Fatal("attributes not in the encrypt set must be left alone")
	}

	dec, err := p.DecryptEntry(ctx, enc)
	if err != nil {
		t.Fatalf("DecryptEntry: %v", err)
	}
	if string(dec.Get("userpassword")[0]) != "hunter2" {
		t.Fatalf("got %q, want hunter2", dec.Get("userpassword")[0])
	}
}

func TestAESGCMProviderEncryptIndexKeyRespectsFlag(t *testing.T) {
	key := bytes.Repeat([]byte{0x7a}, 16)
	p, err := attrcrypt.NewAESGCMProvider(key, []string{"ssn"}, false)
	if err != nil {
		t.Fatalf("NewAESGCMProvider: %v", err)
	}
	got, err := p.EncryptIndexKey("ssn", []byte("123-45-6789"))
	if err != nil {
		t.Fatalf("EncryptIndexKey: %v", err)
	}
	if !bytes.Equal(got, []byte("123-45-6789")) {
		t.Fatal("indexEncrypt=false must pass the key through unchanged")
	}

	p2, err := attrcrypt.NewAESGCMProvider(key, []string{"ssn"}, true)
	if err != nil {
		t.Fatalf("NewAESGCMProvider: %v", err)
	}
	got2, err := p2.EncryptIndexKey("ssn", []byte("123-45-6789"))
	if err != nil {
		t.Fatalf("EncryptIndexKey: %v", err)
	}
	if bytes.Equal(got2, []byte("123-45-6789")) {
		t.Fatal("indexEncrypt=true must encrypt the key")
	}

	got3, err := p2.EncryptIndexKey("othertype", []byte("123-45-6789"))
	if err != nil {
		t.Fatalf("EncryptIndexKey(othertype): %v", err)
	}
	if !bytes.Equal(got3, []byte("123-45-6789")) {
		t.Fatal("attrs not in the configured set must pass through unchanged")
	}
}

func TestAESGCMProviderDecryptFailsOnTamperedCiphertext(t *testing.T) {
	ctx := context.Background()
	key := bytes.Repeat([]byte{0x11}, 24)
	p, err := attrcrypt.NewAESGCMProvider(key, []string{"secret"}, false)
	if err != nil {
		t.Fatalf("NewAESGCMProvider: %v", err)
	}
	e := entry.New("cn=alice,dc=example,dc=com")
	e.AddValues("secret", entry.Value("payload"))
	enc, err := p.EncryptEntry(ctx, e)
	if err != nil {
		t.Fatalf("EncryptEntry: %v", err)
	}
	tampered := append([]byte(nil), enc.Get("secret")[0]...)
	tampered[len(tampered)-1] ^= 0xff
	enc.Attrs["secret"] = []entry.Value{entry.Value(tampered)}

	if _, err := p.DecryptEntry(ctx, enc); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}
