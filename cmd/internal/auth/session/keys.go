package session

import (
	"crypto/rand"
	"encoding/hex"

	paseto "aidanwoods.dev/go-paseto"
)

// Keys is a freshly generated key set for a deployment.
type Keys struct {
	PasetoV4SecretKeyHex string
	PasetoV4PublicKeyHex string
	RefreshSecret        string
}

// GenerateKeys mints a new Ed25519 access keypair and a 32-byte refresh secret.
func GenerateKeys() (Keys, error) {
	secret := paseto.NewV4AsymmetricSecretKey()

	b := make([]byte, MinRefreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return Keys{}, err
	}

	return Keys{
		PasetoV4SecretKeyHex: secret.ExportHex(),
		PasetoV4PublicKeyHex: secret.Public().ExportHex(),
		RefreshSecret:        hex.EncodeToString(b),
	}, nil
}
