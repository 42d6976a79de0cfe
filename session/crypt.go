package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/salsa20"
	"golang.org/x/crypto/tea"
)

const (
	nonceSize       = 16 // random IV/nonce prepended to every encrypted packet
	crcSize         = 4  // checksum covering the plaintext-to-be
	cryptHeaderSize = nonceSize + crcSize
)

// BlockCrypt scrambles and unscrambles whole packets. It is an optional
// substrate-layer stage the arq engine itself has no knowledge of: the
// engine's Non-goals explicitly exclude encryption, so this interface
// lives only in the session package, the way kcp-go's sess.go/crypt.go
// wrap encryption around kcp.go rather than inside it.
type BlockCrypt interface {
	// Encrypt encrypts src (nonce, checksum and payload bytes already laid
	// out by the caller) into dst. The implementations in this package copy
	// the leading nonceSize nonce bytes through unencrypted, so Decrypt can
	// read them back.
	Encrypt(dst, src []byte)
	// Decrypt is the inverse of Encrypt.
	Decrypt(dst, src []byte)
}

// sealCrypt stamps a fresh random nonce and a CRC32 checksum of the
// plaintext into ext's header, then encrypts the buffer in place (the nonce
// itself stays in the clear).
// ext must already have cryptHeaderSize bytes of header space reserved
// before the plaintext payload.
func sealCrypt(block BlockCrypt, ext []byte) {
	io.ReadFull(rand.Reader, ext[:nonceSize])
	checksum := crc32.ChecksumIEEE(ext[cryptHeaderSize:])
	binary.LittleEndian.PutUint32(ext[nonceSize:], checksum)
	block.Encrypt(ext, ext)
}

// openCrypt is the inverse of sealCrypt: it decrypts ext in place and
// validates the checksum, returning the plaintext payload and true, or
// false if the checksum does not match.
func openCrypt(block BlockCrypt, ext []byte) ([]byte, bool) {
	if len(ext) < cryptHeaderSize {
		return nil, false
	}
	block.Decrypt(ext, ext)
	payload := ext[cryptHeaderSize:]
	checksum := crc32.ChecksumIEEE(payload)
	if checksum != binary.LittleEndian.Uint32(ext[nonceSize:]) {
		return nil, false
	}
	return payload, true
}

// cfbBlockCrypt adapts any cipher.Block into BlockCrypt using CFB mode,
// keyed per-packet by the nonce bytes every sealed packet already carries
// (truncated to the cipher's block size).
type cfbBlockCrypt struct {
	block cipher.Block
}

func (c *cfbBlockCrypt) iv(buf []byte) []byte {
	bs := c.block.BlockSize()
	if len(buf) < bs {
		iv := make([]byte, bs)
		copy(iv, buf)
		return iv
	}
	return buf[:bs]
}

func (c *cfbBlockCrypt) Encrypt(dst, src []byte) {
	cipher.NewCFBEncrypter(c.block, c.iv(src)).XORKeyStream(dst[nonceSize:], src[nonceSize:])
	copy(dst[:nonceSize], src[:nonceSize])
}

func (c *cfbBlockCrypt) Decrypt(dst, src []byte) {
	cipher.NewCFBDecrypter(c.block, c.iv(src)).XORKeyStream(dst[nonceSize:], src[nonceSize:])
	copy(dst[:nonceSize], src[:nonceSize])
}

// NewAESBlockCrypt returns a BlockCrypt using AES-128/192/256 in CFB mode,
// chosen by the length of pass (16, 24 or 32 bytes).
func NewAESBlockCrypt(pass []byte) (BlockCrypt, error) {
	block, err := aes.NewCipher(pass)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &cfbBlockCrypt{block: block}, nil
}

// NewBlowfishBlockCrypt returns a BlockCrypt using Blowfish in CFB mode.
func NewBlowfishBlockCrypt(pass []byte) (BlockCrypt, error) {
	block, err := blowfish.NewCipher(pass)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &cfbBlockCrypt{block: block}, nil
}

// NewTEABlockCrypt returns a BlockCrypt using TEA in CFB mode, 64 rounds.
func NewTEABlockCrypt(pass []byte) (BlockCrypt, error) {
	block, err := tea.NewCipherWithRounds(pass, 64)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &cfbBlockCrypt{block: block}, nil
}

// salsa20BlockCrypt implements BlockCrypt directly atop the Salsa20 stream
// cipher, keyed by the packet's own nonce.
type salsa20BlockCrypt struct {
	key [32]byte
}

// NewSalsa20BlockCrypt returns a BlockCrypt using Salsa20/20, keyed by the
// first 32 bytes of pass (pass shorter than 32 bytes is zero-padded).
func NewSalsa20BlockCrypt(pass []byte) (BlockCrypt, error) {
	var c salsa20BlockCrypt
	copy(c.key[:], pass)
	return &c, nil
}

func (c *salsa20BlockCrypt) xor(dst, src []byte) {
	var nonce [8]byte
	copy(nonce[:], src[:nonceSize])
	salsa20.XORKeyStream(dst[nonceSize:], src[nonceSize:], nonce[:], &c.key)
	copy(dst[:nonceSize], src[:nonceSize])
}

func (c *salsa20BlockCrypt) Encrypt(dst, src []byte) { c.xor(dst, src) }
func (c *salsa20BlockCrypt) Decrypt(dst, src []byte) { c.xor(dst, src) }

// xorBlockCrypt is a minimal, non-cryptographic scrambler useful mainly for
// exercising the crypt pipeline in tests without a real cipher dependency.
type xorBlockCrypt struct {
	key []byte
}

// NewSimpleXORBlockCrypt returns a BlockCrypt that XORs the payload against
// a repeating key. It provides no real confidentiality.
func NewSimpleXORBlockCrypt(pass []byte) (BlockCrypt, error) {
	if len(pass) == 0 {
		return nil, errors.New("session: empty xor key")
	}
	return &xorBlockCrypt{key: append([]byte(nil), pass...)}, nil
}

func (c *xorBlockCrypt) xor(dst, src []byte) {
	for i := range src {
		if i < nonceSize {
			dst[i] = src[i]
			continue
		}
		dst[i] = src[i] ^ c.key[i%len(c.key)]
	}
}

func (c *xorBlockCrypt) Encrypt(dst, src []byte) { c.xor(dst, src) }
func (c *xorBlockCrypt) Decrypt(dst, src []byte) { c.xor(dst, src) }

// noneBlockCrypt implements BlockCrypt as a pass-through, for testing the
// pipeline shape without any cipher at all.
type noneBlockCrypt struct{}

// NewNoneBlockCrypt returns a BlockCrypt that performs no transformation.
func NewNoneBlockCrypt([]byte) (BlockCrypt, error) {
	return noneBlockCrypt{}, nil
}

func (noneBlockCrypt) Encrypt(dst, src []byte) { copy(dst, src) }
func (noneBlockCrypt) Decrypt(dst, src []byte) { copy(dst, src) }
