package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultSaltSize   = 32
	vaultKeySize    = 32
	vaultKDFRounds  = 100000
	vaultPassEnvVar = "XFC_PASSPHRASE"
)

// vault is the decrypted payload: every stored session keyed by username.
type vault map[string]Session

// vaultFile is the on-disk envelope. Only the sealed blob is sensitive; the
// salt is stored beside it so any process with the passphrase can re-derive
// the key.
type vaultFile struct {
	Version  int       `json:"version"`
	Salt     string    `json:"salt"`
	Sealed   string    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// EncryptedFileStore implements SessionStore with a single passphrase-sealed
// vault file. The passphrase comes from XFC_PASSPHRASE or a generated
// per-user secret; the vault is AES-GCM under a PBKDF2-derived key.
type EncryptedFileStore struct {
	path       string
	passphrase []byte

	mu sync.Mutex
}

// NewEncryptedFileStore opens (or prepares to create) a vault at path.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating vault directory: %w", err)
		}
	}

	pass, err := resolvePassphrase()
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

func (e *EncryptedFileStore) Store(session *Session) error {
	if session == nil || session.Username == "" {
		return ErrInvalidSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, salt, err := e.readVault()
	if err != nil {
		return err
	}
	v[session.Username] = *session
	return e.writeVault(v, salt)
}

func (e *EncryptedFileStore) Retrieve(username string) (*Session, error) {
	if username == "" {
		return nil, ErrInvalidSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, _, err := e.readVault()
	if err != nil {
		return nil, err
	}
	s, ok := v[username]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (e *EncryptedFileStore) List() ([]*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, _, err := e.readVault()
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(v))
	for _, s := range v {
		s := s
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, salt, err := e.readVault()
	if err != nil {
		return err
	}
	if _, ok := v[username]; !ok {
		return ErrSessionNotFound
	}
	delete(v, username)
	return e.writeVault(v, salt)
}

func (e *EncryptedFileStore) Exists(username string) bool {
	s, err := e.Retrieve(username)
	return err == nil && s != nil
}

// readVault loads and unseals the vault. A missing file is an empty vault
// with no salt yet. Callers hold the mutex.
func (e *EncryptedFileStore) readVault() (vault, []byte, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return vault{}, nil, nil
		}
		return nil, nil, fmt.Errorf("reading vault: %w", err)
	}

	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing vault file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding vault salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding vault payload: %w", err)
	}

	plaintext, err := e.unseal(sealed, salt)
	if err != nil {
		return nil, nil, fmt.Errorf("unsealing vault (wrong passphrase?): %w", err)
	}
	v := vault{}
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, nil, fmt.Errorf("parsing vault contents: %w", err)
	}
	return v, salt, nil
}

// writeVault seals and persists the vault, generating a salt on first write.
// An emptied vault removes the file entirely. Callers hold the mutex.
func (e *EncryptedFileStore) writeVault(v vault, salt []byte) error {
	if len(v) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if salt == nil {
		salt = make([]byte, vaultSaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("generating vault salt: %w", err)
		}
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling vault: %w", err)
	}
	sealed, err := e.seal(plaintext, salt)
	if err != nil {
		return err
	}

	content, err := json.MarshalIndent(vaultFile{
		Version:  1,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Sealed:   base64.StdEncoding.EncodeToString(sealed),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, vaultKDFRounds, vaultKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *EncryptedFileStore) seal(plaintext, salt []byte) ([]byte, error) {
	aead, err := e.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *EncryptedFileStore) unseal(sealed, salt []byte) ([]byte, error) {
	aead, err := e.gcm(salt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// resolvePassphrase prefers the environment, then a persisted per-user
// secret, generating and saving one on first use.
func resolvePassphrase() ([]byte, error) {
	if pass := os.Getenv(vaultPassEnvVar); pass != "" {
		return []byte(pass), nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, err
	}
	secretPath := filepath.Join(configDir, ".passphrase")

	if content, err := os.ReadFile(secretPath); err == nil && len(content) > 0 {
		return content, nil
	}

	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generating passphrase: %w", err)
	}
	encoded := []byte(base64.URLEncoding.EncodeToString(secret))
	if err := os.WriteFile(secretPath, encoded, 0600); err != nil {
		return nil, fmt.Errorf("saving passphrase: %w", err)
	}
	return encoded, nil
}
