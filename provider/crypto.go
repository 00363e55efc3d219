package provider

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the key length used by the stock cryptographers.
const KeySize = 32

// ErrCiphertext is returned when a body cannot be decrypted.
var ErrCiphertext = errors.New("invalid ciphertext")

// DeriveKey stretches a passphrase into a KeySize key with Argon2id. Both
// peers must use the same salt.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeySize)
}

// AESCBC encrypts with AES-256 in CBC mode. Every body gets a random IV that
// is sent in front of the ciphertext; plaintext is PKCS#7 padded.
type AESCBC struct {
	block cipher.Block
}

// NewAESCBC creates an AES-CBC cryptographer from a 16, 24 or 32 byte key.
func NewAESCBC(key []byte) (*AESCBC, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes cipher")
	}
	return &AESCBC{block: block}, nil
}

// NewAESCBCFromPassphrase creates an AES-256-CBC cryptographer keyed by DeriveKey.
func NewAESCBCFromPassphrase(passphrase string, salt []byte) (*AESCBC, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return NewAESCBC(DeriveKey(passphrase, salt))
}

// Encrypt implements Cryptographer.
func (a *AESCBC) Encrypt(p []byte) ([]byte, error) {
	bs := a.block.BlockSize()
	pad := bs - len(p)%bs
	padded := make([]byte, len(p)+pad)
	copy(padded, p)
	copy(padded[len(p):], bytes.Repeat([]byte{byte(pad)}, pad))

	out := make([]byte, bs+len(padded))
	iv := out[:bs]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.Wrap(err, "generate iv")
	}
	cipher.NewCBCEncrypter(a.block, iv).CryptBlocks(out[bs:], padded)
	return out, nil
}

// Decrypt implements Cryptographer.
func (a *AESCBC) Decrypt(p []byte) ([]byte, error) {
	bs := a.block.BlockSize()
	if len(p) < 2*bs || len(p)%bs != 0 {
		return nil, ErrCiphertext
	}

	iv, data := p[:bs], p[bs:]
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(a.block, iv).CryptBlocks(out, data)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > bs {
		return nil, ErrCiphertext
	}
	for _, v := range out[len(out)-pad:] {
		if int(v) != pad {
			return nil, ErrCiphertext
		}
	}
	return out[:len(out)-pad], nil
}

// ChaCha20Poly1305 is an authenticated cryptographer. The random nonce is
// sent in front of the sealed body.
type ChaCha20Poly1305 struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305 creates the cryptographer from a KeySize key.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "chacha20poly1305")
	}
	return &ChaCha20Poly1305{aead: aead}, nil
}

// Encrypt implements Cryptographer.
func (c *ChaCha20Poly1305) Encrypt(p []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(p)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return c.aead.Seal(nonce, nonce, p, nil), nil
}

// Decrypt implements Cryptographer.
func (c *ChaCha20Poly1305) Decrypt(p []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(p) < ns+c.aead.Overhead() {
		return nil, ErrCiphertext
	}
	out, err := c.aead.Open(nil, p[:ns], p[ns:], nil)
	if err != nil {
		return nil, errors.Wrap(ErrCiphertext, err.Error())
	}
	return out, nil
}
