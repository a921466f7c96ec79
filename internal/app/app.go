package app

import (
	"fmt"

	"go.uber.org/zap"

	"vc-go/internal/config"
	"vc-go/internal/encryption"
	"vc-go/internal/store"
	"vc-go/internal/vault"
	"vc-go/internal/vc"
)

// VCApp is the application layer between the CLI and the version
// control Service. It constructs all dependencies from config and
// manages their lifecycle on Close.
type VCApp struct {
	cfg       *config.Config
	store     vc.Store
	vault     vc.Vault
	encryptor vc.Encryptor
	service   *vc.Service
	logger    *zap.Logger
}

// NewVCApp creates a fully wired VCApp from the given config.
// The caller must call Close when done.
func NewVCApp(cfg *config.Config) (*VCApp, error) {
	st, err := store.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := st.CheckMigrations(); err != nil {
		st.Close()
		return nil, fmt.Errorf("store schema out of date, run `vc db migrate`: %w", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	src, err := NewFileSourceFromConfig(cfg.Source)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating file source: %w", err)
	}

	logger, err := newLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := vc.NewService(st, v, enc, src, &zapAdapter{l: logger.Sugar()}, vc.RealClock{}, vc.UUIDGenerator{})

	return &VCApp{
		cfg:       cfg,
		store:     st,
		vault:     v,
		encryptor: enc,
		service:   svc,
		logger:    logger,
	}, nil
}

// Service returns the wired version-control service.
func (a *VCApp) Service() *vc.Service {
	return a.service
}

// Vault returns the wired export vault.
func (a *VCApp) Vault() vc.Vault {
	return a.vault
}

// Encryptor returns the wired encryptor.
func (a *VCApp) Encryptor() vc.Encryptor {
	return a.encryptor
}

// Config returns the config the app was built from.
func (a *VCApp) Config() *config.Config {
	return a.cfg
}

// Close flushes buffered log output and closes the store.
func (a *VCApp) Close() error {
	// Sync flushes the file sink; syncing stderr fails on some
	// platforms and is safe to ignore.
	_ = a.logger.Sync()

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
