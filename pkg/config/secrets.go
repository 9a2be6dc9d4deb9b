package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Encrypted secrets file layout: [salt][nonce][ciphertext+tag].
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// SecretStore holds decrypted secrets in memory after unlock. Lookups fall
// back to environment variables, so a store is usable without a secrets
// file at all.
type SecretStore struct {
	dir string

	mu      sync.RWMutex
	secrets map[string]string
}

// NewSecretStore creates a store rooted at dir. Secrets remain locked
// until Unlock is called; env-only lookup works immediately.
func NewSecretStore(dir string) *SecretStore {
	return &SecretStore{dir: dir}
}

// Exists reports whether an encrypted secrets file is present.
func (s *SecretStore) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, secretsFileName))

	return err == nil
}

// Unlock decrypts the secrets file into memory using password.
func (s *SecretStore) Unlock(password string) error {
	secrets, err := decryptSecretsFile(filepath.Join(s.dir, secretsFileName), password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.secrets = secrets
	s.mu.Unlock()

	return nil
}

// Get returns a secret by name: the decrypted file first, then the
// environment.
func (s *SecretStore) Get(name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.secrets[name]; ok && value != "" {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	if value := os.Getenv(name); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// APIKeyFor returns the API key for an LLM provider, looked up under the
// provider's conventional variable name (e.g. ANTHROPIC_API_KEY).
func (s *SecretStore) APIKeyFor(provider string) (string, error) {
	switch provider {
	case "ollama", "mock":
		return "", nil // no key needed
	}

	return s.Get(strings.ToUpper(provider) + "_API_KEY")
}

// Set stores a secret in memory. Call Save to persist.
func (s *SecretStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secrets == nil {
		s.secrets = make(map[string]string)
	}
	s.secrets[name] = value
}

// Names returns the names (not values) of in-memory secrets.
func (s *SecretStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		names = append(names, name)
	}

	return names
}

// Save encrypts the in-memory secrets to disk under password with 0600
// permissions.
func (s *SecretStore) Save(password string) error {
	s.mu.RLock()
	secrets := make(map[string]string, len(s.secrets))
	for k, v := range s.secrets {
		secrets[k] = v
	}
	s.mu.RUnlock()

	return encryptSecretsFile(s.dir, password, secrets)
}

func encryptSecretsFile(dir, password string, secrets map[string]string) error {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer zero(key)

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, secretsFileName), fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}

	return nil
}

func decryptSecretsFile(path, password string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0600 {
		if chmodErr := os.Chmod(path, 0600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix secrets file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	minSize := saltSize + nonceSize + 16 // 16 is the GCM tag size
	if len(fileData) < minSize {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive decryption key: %w", err)
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}

	return secrets, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
