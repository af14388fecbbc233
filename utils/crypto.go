package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// 凭据加密：scrypt 派生密钥 + AES-256-GCM
// 用于本地保存券商账号密码，盐随密文一起存储

const saltSize = 16

// deriveKey 从口令派生 32 字节密钥
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("派生密钥失败: %v", err)
	}
	return key, nil
}

// EncryptCredential 加密凭据，返回 base64(salt || nonce || ciphertext)
func EncryptCredential(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("生成盐失败: %v", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("创建加密器失败: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("创建GCM失败: %v", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成随机数失败: %v", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(append(salt, nonce...), sealed...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptCredential 解密 EncryptCredential 的输出
func DecryptCredential(encoded, passphrase string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("解码密文失败: %v", err)
	}
	if len(payload) < saltSize {
		return "", fmt.Errorf("密文格式无效")
	}

	salt := payload[:saltSize]
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("创建解密器失败: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("创建GCM失败: %v", err)
	}

	if len(payload) < saltSize+gcm.NonceSize() {
		return "", fmt.Errorf("密文格式无效")
	}
	nonce := payload[saltSize : saltSize+gcm.NonceSize()]
	ciphertext := payload[saltSize+gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("解密失败: %v", err)
	}
	return string(plain), nil
}
