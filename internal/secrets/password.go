package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this app's secrets in the OS keychain.
const KeyringService = "cvmailer"

// SMTPAccount is the keychain account name for the send credentials.
func SMTPAccount(username, host string) string {
	return fmt.Sprintf("cvmailer:smtp:%s@%s", username, host)
}

// IMAPAccount is the keychain account name for the response-poller login.
func IMAPAccount(username, host string) string {
	return fmt.Sprintf("cvmailer:imap:%s@%s", username, host)
}

// GetPassword looks in the keychain first, then the given env var. Headless
// boxes without a keyring daemon still work through the env fallback.
func GetPassword(account, envVar string) (string, error) {
	if strings.TrimSpace(account) != "" {
		pw, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	if pw := strings.TrimSpace(os.Getenv(envVar)); pw != "" {
		return pw, nil
	}
	return "", fmt.Errorf("password not found for %s (set it in the keychain or via %s)", account, envVar)
}

func SetPassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, account, password)
}

func DeletePassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}
