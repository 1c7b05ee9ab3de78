package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// Ошибки шифрования
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
	ErrEmptyMasterKey     = errors.New("master key is empty")
)

// Параметры деривации ключа из master key
const (
	keyLength        = 32 // AES-256
	pbkdf2Iterations = 4096
)

// DeriveKey выводит 32-байтовый ключ AES-256 из master key и соли.
//
// Master key задаётся в конфигурации произвольной длины, PBKDF2-SHA256
// приводит его к ровно 32 байтам. Соль фиксируется на уровне инсталляции:
// смена соли делает все ранее зашифрованные ключи нечитаемыми.
func DeriveKey(masterKey, salt string) ([]byte, error) {
	if masterKey == "" {
		return nil, ErrEmptyMasterKey
	}
	return pbkdf2.Key([]byte(masterKey), []byte(salt), pbkdf2Iterations, keyLength, sha256.New), nil
}

// newGCM собирает AEAD поверх AES-256 для Encrypt и Decrypt
func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt шифрует plaintext по схеме AES-256-GCM.
//
// Так хранятся биржевые API ключи в БД. Результат - base64 строка
// вида nonce || ciphertext || tag.
func Encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	// Nonce уникален для каждого вызова, повтор недопустим для GCM
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	// Seal дописывает шифртекст и аутентификационный тег после nonce
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt разворачивает base64 строку, выданную Encrypt
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Подмена данных и чужой ключ неразличимы
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey возвращает криптографически случайный ключ AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyHex возвращает новый ключ в hex-виде для .env файла
func GenerateKeyHex() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// ValidateKey проверяет длину ключа
func ValidateKey(key []byte) error {
	if len(key) != keyLength {
		return ErrInvalidKeyLength
	}
	return nil
}
