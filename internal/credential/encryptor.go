package credential

import (
	"encoding/base64"
	"fmt"
	"log/slog"
)

// Notifier reports the outcome of an operator action.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Store persists a Credential.
type Store interface {
	Load() (Credential, error)
	Save(Credential) error
}

// Encryptor encrypts operator-entered API keys into a Store.
type Encryptor struct {
	store    Store
	notifier Notifier
	keySize  int
	logger   *slog.Logger
}

// NewEncryptor creates an Encryptor. A keySize of 0 selects DefaultKeySize.
func NewEncryptor(store Store, notifier Notifier, keySize int, logger *slog.Logger) *Encryptor {
	return &Encryptor{
		store:    store,
		notifier: notifier,
		keySize:  keySize,
		logger:   logger,
	}
}

// OneClick generates a fresh AES key and IV, encrypts secret with them and
// saves all three values, replacing whatever was stored. On success secret is
// zeroed.
func (e *Encryptor) OneClick(secret []byte) (Credential, error) {
	if len(secret) == 0 {
		return Credential{}, e.fail("Please enter the API key.", fmt.Errorf("%w: secret is empty", ErrInvalidInput))
	}

	key, iv, err := GenerateKeyAndIV(e.keySize)
	if err != nil {
		return Credential{}, e.fail("Failed to generate AES key and IV.", err)
	}

	cred, err := e.encryptAndSave(secret, key, iv)
	if err != nil {
		return Credential{}, err
	}

	e.logger.Info("api key encrypted with generated key material", "key_bytes", len(key))
	e.notifier.Success("API key encrypted and set successfully with generated AES key and IV!")
	return cred, nil
}

// EncryptAndSet encrypts secret with the AES key and IV already in the store.
// On success secret is zeroed.
func (e *Encryptor) EncryptAndSet(secret []byte) (Credential, error) {
	current, err := e.store.Load()
	if err != nil {
		return Credential{}, e.fail("Failed to load stored credential.", err)
	}

	if len(secret) == 0 || !current.HasKeyMaterial() {
		return Credential{}, e.fail("Please enter API key, AES key, and AES IV.",
			fmt.Errorf("%w: secret, AES key and AES IV are required", ErrInvalidInput))
	}

	key, err := base64.StdEncoding.DecodeString(current.AESKey)
	if err != nil {
		return Credential{}, e.fail("Stored AES key is not valid base64.", fmt.Errorf("%w: AES key: %v", ErrInvalidInput, err))
	}
	iv, err := base64.StdEncoding.DecodeString(current.AESIV)
	if err != nil {
		return Credential{}, e.fail("Stored AES IV is not valid base64.", fmt.Errorf("%w: AES IV: %v", ErrInvalidInput, err))
	}

	cred, err := e.encryptAndSave(secret, key, iv)
	if err != nil {
		return Credential{}, err
	}

	e.logger.Info("api key encrypted with stored key material")
	e.notifier.Success("API key encrypted and set successfully!")
	return cred, nil
}

// Rotate decrypts the stored API key, generates new key material and
// re-encrypts it.
func (e *Encryptor) Rotate() (Credential, error) {
	current, err := e.store.Load()
	if err != nil {
		return Credential{}, e.fail("Failed to load stored credential.", err)
	}

	plain, err := current.Decrypt()
	if err != nil {
		return Credential{}, e.fail("Failed to decrypt the stored API key.", err)
	}
	secret := []byte(plain)

	key, iv, err := GenerateKeyAndIV(e.keySize)
	if err != nil {
		return Credential{}, e.fail("Failed to generate AES key and IV.", err)
	}

	cred, err := e.encryptAndSave(secret, key, iv)
	if err != nil {
		return Credential{}, err
	}

	e.logger.Info("credential rotated", "key_bytes", len(key))
	e.notifier.Success("API key re-encrypted with a new AES key and IV!")
	return cred, nil
}

func (e *Encryptor) encryptAndSave(secret, key, iv []byte) (Credential, error) {
	ciphertext, err := Encrypt(secret, key, iv)
	if err != nil {
		return Credential{}, e.fail("Failed to encrypt API key: "+err.Error(), err)
	}

	cred := Credential{
		EncryptedAPIKey: ciphertext,
		AESKey:          base64.StdEncoding.EncodeToString(key),
		AESIV:           base64.StdEncoding.EncodeToString(iv),
	}

	if err := e.store.Save(cred); err != nil {
		return Credential{}, e.fail("Failed to save credential: "+err.Error(), err)
	}

	clear(secret)
	return cred, nil
}

func (e *Encryptor) fail(msg string, err error) error {
	e.logger.Error("credential operation failed", "error", err)
	e.notifier.Error(msg)
	return err
}
