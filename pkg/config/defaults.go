package config

import (
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.keystore",
		Storage: StorageConfig{
			Backend:         BackendFile,
			Path:            "~/.keystore/wallets",
			BadgerDir:       "~/.keystore/db",
			MongoDatabase:   "keystore",
			MongoCollection: "wallets",
		},
		Encryption: wallet.EncryptionStandard,
		Security: SecurityConfig{
			MemoryLock:                true,
			PasswordAttemptsPerMinute: 0,
			PasswordAttemptBurst:      5,
		},
		Logging: LoggingConfig{
			Level:  "error",
			Format: FormatText,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "keystore",
		},
	}
}
