package store

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// sealed blobs are magic || salt || nonce || ciphertext
var sealMagic = []byte("gst2")

const saltSize = 16

// argon2id parameters, RFC 9106 second recommended option
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrDecrypt is returned when a sealed blob cannot be opened, usually because
// the passphrase changed.
var ErrDecrypt = errors.New("unable to decrypt session state")

// sealer encrypts with XChaCha20-Poly1305 under a key stretched from the
// passphrase with Argon2id. Every sealer draws its own salt, which is stored
// in the blob. The storage key is bound as additional data so a blob cannot
// be moved between keys.
type sealer struct {
	passphrase []byte
	ad         []byte
	salt       []byte
	aead       cipher.AEAD

	mu       sync.Mutex
	openSalt []byte
	openAEAD cipher.AEAD
}

func newSealer(passphrase, key string) (*sealer, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "error generating salt")
	}
	s := &sealer{passphrase: []byte(passphrase), ad: []byte(key), salt: salt}
	aead, err := s.derive(salt)
	if err != nil {
		return nil, err
	}
	s.aead = aead
	return s, nil
}

func (s *sealer) derive(salt []byte) (cipher.AEAD, error) {
	dk := argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(dk)
	if err != nil {
		return nil, errors.Wrap(err, "error creating cipher")
	}
	return aead, nil
}

// aeadFor returns the cipher for a stored salt, deriving it at most once per
// distinct salt in a row.
func (s *sealer) aeadFor(salt []byte) (cipher.AEAD, error) {
	if bytes.Equal(salt, s.salt) {
		return s.aead, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openAEAD != nil && bytes.Equal(salt, s.openSalt) {
		return s.openAEAD, nil
	}
	aead, err := s.derive(salt)
	if err != nil {
		return nil, err
	}
	s.openSalt = bytes.Clone(salt)
	s.openAEAD = aead
	return aead, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "error generating nonce")
	}
	out := make([]byte, 0, len(sealMagic)+saltSize+len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, s.ad), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealMagic) {
		return nil, errors.Wrap(ErrDecrypt, "stored session state is not encrypted")
	}
	data = data[len(sealMagic):]
	if len(data) < saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, errors.Wrap(ErrDecrypt, "stored session state is truncated")
	}
	salt, data := data[:saltSize], data[saltSize:]
	aead, err := s.aeadFor(salt)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, s.ad)
	if err != nil {
		return nil, errors.Wrap(ErrDecrypt, "wrong passphrase or storage key")
	}
	return plaintext, nil
}
