package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the agent's secrets in the OS keychain.
const KeyringService = "inbound-lead-agent"

// Keyring account names.
const (
	SecretGeminiAPIKey       = "gemini_api_key"
	SecretExaAPIKey          = "exa_api_key"
	SecretSlackBotToken      = "slack_bot_token"
	SecretSlackSigningSecret = "slack_signing_secret"
	SecretSMTPPassword       = "smtp_password"
)

// SecretNames lists every account Load consults.
var SecretNames = []string{
	SecretGeminiAPIKey,
	SecretExaAPIKey,
	SecretSlackBotToken,
	SecretSlackSigningSecret,
	SecretSMTPPassword,
}

type SecretStore interface {
	Get(service, account string) (string, error)
}

// Keyring reads from the OS keychain.
type Keyring struct{}

func (Keyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

// lookupSecret treats every keyring error (missing entry, no keychain
// available) as an absent secret.
func lookupSecret(s SecretStore, account string) (string, bool) {
	v, err := s.Get(KeyringService, account)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func knownSecret(account string) bool {
	for _, n := range SecretNames {
		if n == account {
			return true
		}
	}
	return false
}

// SetSecret stores a secret in the OS keychain.
func SetSecret(account, value string) error {
	if !knownSecret(account) {
		return fmt.Errorf("unknown secret %q (want one of %s)", account, strings.Join(SecretNames, ", "))
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(KeyringService, account, value)
}

// DeleteSecret removes a secret from the OS keychain.
func DeleteSecret(account string) error {
	if !knownSecret(account) {
		return fmt.Errorf("unknown secret %q", account)
	}
	return keyring.Delete(KeyringService, account)
}
