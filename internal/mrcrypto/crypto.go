// Package mrcrypto implements the key derivation, password validation, and
// block cipher operations used by the container format: PBKDF2-HMAC-SHA256
// key derivation, an HMAC-SHA256 password check, MD5 content hashing, and
// AES ECB/CBC decryption with a deterministic per-block IV.
package mrcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"

	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// KeyLength is the derived-key and HMAC size in bytes, regardless of the
// AES variant in use.
const KeyLength = 32

// AESVariant identifies the cipher strength negotiated for a container.
type AESVariant int

const (
	AESNone AESVariant = iota
	AES128
	AES192
	AES256
)

// KeySize returns the AES key size in bytes for the variant, or an error
// for AESNone, which never reaches a cipher operation.
func (v AESVariant) KeySize() (int, error) {
	switch v {
	case AES128:
		return 16, nil
	case AES192:
		return 24, nil
	case AES256:
		return 32, nil
	default:
		return 0, restoreerr.New(restoreerr.CryptoInit, "no AES key size for variant")
	}
}

// DeriveKey computes the 32-byte key for a container: salt is
// SHA-256(imageIDBinary), then PBKDF2-HMAC-SHA256(password, salt,
// iterations, 32).
func DeriveKey(imageIDBinary [8]byte, password string, iterations int) [KeyLength]byte {
	salt := sha256.Sum256(imageIDBinary[:])
	derived := pbkdf2.Key([]byte(password), salt[:], iterations, KeyLength, sha256.New)
	var out [KeyLength]byte
	copy(out[:], derived)
	return out
}

// KeyHMAC computes HMAC-SHA256(key, key), the password-check MAC stored in
// the container as a 64-hex-character string.
func KeyHMAC(key [KeyLength]byte) [KeyLength]byte {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(key[:])
	var out [KeyLength]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ValidatePassword derives the key for password and compares its HMAC to
// hmacBinary in constant time. Call only when encryption is enabled.
func ValidatePassword(imageIDBinary [8]byte, password string, iterations int, hmacBinary [KeyLength]byte) ([KeyLength]byte, error) {
	key := DeriveKey(imageIDBinary, password, iterations)
	mac := KeyHMAC(key)
	if !hmac.Equal(mac[:], hmacBinary[:]) {
		return [KeyLength]byte{}, restoreerr.New(restoreerr.InvalidPassword, "password does not match stored HMAC")
	}
	return key, nil
}

// MD5 returns the 16-byte MD5 digest of data.
func MD5(data []byte) [16]byte {
	return md5.Sum(data)
}

// DecryptECB decrypts buf in place using AES-ECB with no padding. The
// container always stores a 32-byte derived key regardless of variant; only
// its first KeySize(variant) bytes feed the cipher, matching the original's
// AES-NI round-key expansion from a fixed-size key buffer. len(buf) must be
// a multiple of the cipher block size.
func DecryptECB(variant AESVariant, key []byte, buf []byte) error {
	keySize, err := variant.KeySize()
	if err != nil {
		return err
	}
	if len(key) < keySize {
		return restoreerr.New(restoreerr.CryptoSize, "derived key shorter than variant key size")
	}
	block, err := aes.NewCipher(key[:keySize])
	if err != nil {
		return restoreerr.Wrap(restoreerr.CryptoInit, "aes ecb init", err)
	}
	if len(buf)%block.BlockSize() != 0 {
		return restoreerr.New(restoreerr.CryptoSize, "ecb buffer not a multiple of block size")
	}
	for i := 0; i+block.BlockSize() <= len(buf); i += block.BlockSize() {
		block.Decrypt(buf[i:i+block.BlockSize()], buf[i:i+block.BlockSize()])
	}
	return nil
}

// EncryptECBBlock encrypts exactly one 16-byte block with AES-ECB, the AES
// variant following len(key); it backs FormatIV, which always wraps its
// record with a 256-bit key derived from the container's key material
// regardless of the container's own AES variant.
func EncryptECBBlock(key, block []byte) ([]byte, error) {
	cipherBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, restoreerr.Wrap(restoreerr.CryptoInit, "aes ecb init for iv wrap", err)
	}
	if len(block) != cipherBlock.BlockSize() {
		return nil, restoreerr.New(restoreerr.CryptoSize, "iv wrap block must be one cipher block")
	}
	out := make([]byte, len(block))
	cipherBlock.Encrypt(out, block)
	return out, nil
}

// DecryptCBC decrypts buf in place using AES-CBC with no padding. As with
// DecryptECB, only the first KeySize(variant) bytes of the 32-byte derived
// key are used. len(buf) must be a multiple of the cipher block size.
func DecryptCBC(variant AESVariant, key []byte, iv []byte, buf []byte) error {
	keySize, err := variant.KeySize()
	if err != nil {
		return err
	}
	if len(key) < keySize {
		return restoreerr.New(restoreerr.CryptoSize, "derived key shorter than variant key size")
	}
	block, err := aes.NewCipher(key[:keySize])
	if err != nil {
		return restoreerr.Wrap(restoreerr.CryptoInit, "aes cbc init", err)
	}
	if len(buf)%block.BlockSize() != 0 {
		return restoreerr.New(restoreerr.CryptoSize, "cbc buffer not a multiple of block size")
	}
	if len(iv) != block.BlockSize() {
		return restoreerr.New(restoreerr.CryptoSize, "iv must be one cipher block")
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(buf, buf)
	return nil
}

// FormatIV derives the deterministic 16-byte IV for (imageID, disk,
// partition, blockIndex, key): a 16-byte record of imageID followed by the
// little-endian disk number, partition number, and block index, wrapped
// with AES-256-ECB using SHA-256(key) as the wrapping key.
func FormatIV(imageID [8]byte, diskNumber, partitionNumber uint16, blockIndex uint32, key [KeyLength]byte) ([16]byte, error) {
	var record bytes.Buffer
	record.Write(imageID[:])
	binary.Write(&record, binary.LittleEndian, diskNumber)
	binary.Write(&record, binary.LittleEndian, partitionNumber)
	binary.Write(&record, binary.LittleEndian, blockIndex)

	keyHash := sha256.Sum256(key[:])
	wrapped, err := EncryptECBBlock(keyHash[:], record.Bytes())
	if err != nil {
		return [16]byte{}, err
	}
	var iv [16]byte
	copy(iv[:], wrapped)
	return iv, nil
}
