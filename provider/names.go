package provider

import (
	"strings"

	"github.com/pkg/errors"
)

// SerializerByName returns the stock serializer registered under name.
func SerializerByName(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	default:
		return nil, errors.Errorf("unknown serializer %q", name)
	}
}

// CompressorByName returns the stock compressor registered under name.
// "none" selects Identity.
func CompressorByName(name string) (Compressor, error) {
	switch strings.ToLower(name) {
	case "", "deflate":
		return Deflate{}, nil
	case "brotli":
		return Brotli{}, nil
	case "none", "identity":
		return Identity{}, nil
	default:
		return nil, errors.Errorf("unknown compressor %q", name)
	}
}

// CryptographerByName builds the stock cryptographer registered under name
// keyed from passphrase and salt. "none" returns a nil Cryptographer.
func CryptographerByName(name, passphrase string, salt []byte) (Cryptographer, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "aes-cbc", "aes":
		c, err := NewAESCBCFromPassphrase(passphrase, salt)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "chacha20poly1305", "chacha20-poly1305":
		if passphrase == "" {
			return nil, errors.New("passphrase must not be empty")
		}
		c, err := NewChaCha20Poly1305(DeriveKey(passphrase, salt))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.Errorf("unknown cryptographer %q", name)
	}
}
