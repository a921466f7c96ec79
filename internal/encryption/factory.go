package encryption

import (
	"fmt"

	"vc-go/internal/config"
	"vc-go/internal/vc"
)

// NewEncryptorFromConfig picks the implementation for cfg.Type. Age is
// the default; the test encryptor must be opted into explicitly.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (vc.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
