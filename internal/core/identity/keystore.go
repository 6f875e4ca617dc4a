package identity

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// 密钥文件:
//
//	magic "MESHCHAT-KEY" | version(1) | encrypted(1) | body
//
// 加密时 body = salt(16) | nonce(24) | XChaCha20-Poly1305(MarshalPrivateKey)
const (
	keyFileMagic   = "MESHCHAT-KEY"
	keyFileVersion = 1

	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// FileKeyStore 把私钥保存在单个文件中
type FileKeyStore struct {
	Path       string
	Passphrase string
}

// Load 读取并解析密钥文件
func (ks *FileKeyStore) Load() (*Identity, error) {
	raw, err := os.ReadFile(ks.Path)
	if err != nil {
		return nil, err
	}
	hdr := len(keyFileMagic) + 2
	if len(raw) < hdr || !bytes.HasPrefix(raw, []byte(keyFileMagic)) || raw[len(keyFileMagic)] != keyFileVersion {
		return nil, ErrBadKeyFile
	}
	encrypted := raw[len(keyFileMagic)+1] == 1
	body := raw[hdr:]

	if encrypted {
		if ks.Passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		if body, err = open(ks.Passphrase, body); err != nil {
			return nil, err
		}
	}

	priv, err := UnmarshalPrivateKey(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyFile, err)
	}
	return FromPrivateKey(priv)
}

// Save 写入密钥文件（0600），目录不存在时创建
func (ks *FileKeyStore) Save(id *Identity) error {
	body := MarshalPrivateKey(id.PrivateKey())
	var flag byte
	if ks.Passphrase != "" {
		sealed, err := seal(ks.Passphrase, body)
		if err != nil {
			return err
		}
		body, flag = sealed, 1
	}

	out := make([]byte, 0, len(keyFileMagic)+2+len(body))
	out = append(out, keyFileMagic...)
	out = append(out, keyFileVersion, flag)
	out = append(out, body...)

	if err := os.MkdirAll(filepath.Dir(ks.Path), 0o700); err != nil {
		return fmt.Errorf("identity: create key dir: %w", err)
	}
	tmp := ks.Path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("identity: write key file: %w", err)
	}
	return os.Rename(tmp, ks.Path)
}

// LoadOrGenerate 文件不存在时生成新身份并保存
func (ks *FileKeyStore) LoadOrGenerate() (*Identity, bool, error) {
	id, err := ks.Load()
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	if id, err = Generate(); err != nil {
		return nil, false, err
	}
	if err := ks.Save(id); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

func seal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	out := append(salt, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(keyFileMagic)), nil
}

func open(passphrase string, body []byte) ([]byte, error) {
	if len(body) < saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrBadKeyFile
	}
	salt := body[:saltSize]
	nonce := body[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, body[saltSize+chacha20poly1305.NonceSizeX:], []byte(keyFileMagic))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
