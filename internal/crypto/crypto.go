// Package crypto implements optional AES-256-GCM encryption of backup
// archives as a streaming reader wrapper. Keys are derived from a password
// with PBKDF2-SHA256; each 64KB chunk is sealed with a nonce derived from
// the header's base nonce and a chunk counter.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	nonceSize  = 12
	iterations = 100000
	chunkSize  = 64 * 1024

	// MagicSize is the length of the header magic prefix.
	MagicSize = 8
)

var magic = []byte("DCSNAP-E")

// Header carries the key-derivation salt and the base nonce of an
// encrypted archive.
type Header struct {
	Salt  []byte
	Nonce []byte
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// chunkNonce derives the nonce for one chunk by folding the counter into
// the base nonce. Encrypt and decrypt must walk chunks in the same order.
func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= byte(counter >> (8 * i))
	}
	return nonce
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptReader wraps a reader with AES-256-GCM encryption
type EncryptReader struct {
	reader    io.Reader
	aead      cipher.AEAD
	baseNonce []byte
	counter   uint64
	buffer    []byte
	pending   []byte
	eof       bool
}

// NewEncryptReader creates an encrypting reader plus the header that must
// be written ahead of the encrypted stream.
func NewEncryptReader(r io.Reader, password string) (*EncryptReader, *Header, error) {
	salt, err := randomBytes(saltSize)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randomBytes(nonceSize)
	if err != nil {
		return nil, nil, err
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, nil, err
	}

	return &EncryptReader{
		reader:    r,
		aead:      aead,
		baseNonce: nonce,
		buffer:    make([]byte, chunkSize),
	}, &Header{Salt: salt, Nonce: nonce}, nil
}

// Read implements io.Reader with encryption
func (er *EncryptReader) Read(p []byte) (int, error) {
	if len(er.pending) > 0 {
		n := copy(p, er.pending)
		er.pending = er.pending[n:]
		return n, nil
	}
	if er.eof {
		return 0, io.EOF
	}

	// Fill whole chunks so the decryptor can rely on fixed-size framing;
	// only the final chunk may be short.
	n, err := io.ReadFull(er.reader, er.buffer)
	if err == io.EOF {
		er.eof = true
		return 0, io.EOF
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	if err == io.ErrUnexpectedEOF {
		er.eof = true
	}

	er.pending = er.aead.Seal(nil, chunkNonce(er.baseNonce, er.counter), er.buffer[:n], nil)
	er.counter++

	copied := copy(p, er.pending)
	er.pending = er.pending[copied:]
	return copied, nil
}

// DecryptReader wraps a reader with AES-256-GCM decryption
type DecryptReader struct {
	reader    io.Reader
	aead      cipher.AEAD
	baseNonce []byte
	counter   uint64
	buffer    []byte
	pending   []byte
	eof       bool
}

// NewDecryptReader creates a decrypting reader for a stream produced by
// EncryptReader, using the salt and nonce read from the header.
func NewDecryptReader(r io.Reader, password string, header *Header) (*DecryptReader, error) {
	aead, err := newAEAD(password, header.Salt)
	if err != nil {
		return nil, err
	}

	baseNonce := make([]byte, len(header.Nonce))
	copy(baseNonce, header.Nonce)

	return &DecryptReader{
		reader:    r,
		aead:      aead,
		baseNonce: baseNonce,
		buffer:    make([]byte, chunkSize+aead.Overhead()),
	}, nil
}

// Read implements io.Reader with decryption
func (dr *DecryptReader) Read(p []byte) (int, error) {
	if len(dr.pending) > 0 {
		n := copy(p, dr.pending)
		dr.pending = dr.pending[n:]
		return n, nil
	}
	if dr.eof {
		return 0, io.EOF
	}

	// Sealed chunks must be decrypted whole.
	n, err := io.ReadFull(dr.reader, dr.buffer)
	if err == io.EOF {
		dr.eof = true
		return 0, io.EOF
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	if err == io.ErrUnexpectedEOF {
		dr.eof = true
	}

	plain, openErr := dr.aead.Open(nil, chunkNonce(dr.baseNonce, dr.counter), dr.buffer[:n], nil)
	if openErr != nil {
		return 0, fmt.Errorf("decryption failed: %w", openErr)
	}
	dr.pending = plain
	dr.counter++

	copied := copy(p, dr.pending)
	dr.pending = dr.pending[copied:]
	return copied, nil
}

// WriteHeader writes the archive encryption header: magic, version, salt,
// base nonce.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if _, err := w.Write(header.Salt); err != nil {
		return fmt.Errorf("failed to write salt: %w", err)
	}
	if _, err := w.Write(header.Nonce); err != nil {
		return fmt.Errorf("failed to write nonce: %w", err)
	}
	return nil
}

// ReadHeader reads and validates an archive encryption header.
func ReadHeader(r io.Reader) (*Header, error) {
	head := make([]byte, MagicSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if !IsEncrypted(head) {
		return nil, fmt.Errorf("not an encrypted archive")
	}

	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version[0] != 1 {
		return nil, fmt.Errorf("unsupported encryption version: %d", version[0])
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	return &Header{Salt: salt, Nonce: nonce}, nil
}

// IsEncrypted checks if data starts with the encryption magic.
func IsEncrypted(data []byte) bool {
	return len(data) >= MagicSize && string(data[:MagicSize]) == string(magic)
}
