package internal

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
)

// ClientCredentials are the OAuth application credentials persisted by
// RegisterApp. The file holds the client id, the client secret and optionally
// the instance base URL, one per line.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// ReadClientCredentials loads an application credential file.
func ReadClientCredentials(path string) (ClientCredentials, error) {
	lines, err := readCredentialLines(path)
	if err != nil {
		return ClientCredentials{}, err
	}
	if len(lines) < 2 {
		return ClientCredentials{}, &pkgerrs.ConfigError{
			Field:   "ClientCredentialFile",
			Message: fmt.Sprintf("%s: expected client id and client secret on the first two lines", path),
		}
	}

	creds := ClientCredentials{ClientID: lines[0], ClientSecret: lines[1]}
	if len(lines) > 2 {
		creds.BaseURL = lines[2]
	}
	return creds, nil
}

// WriteClientCredentials persists application credentials with mode 0600.
func WriteClientCredentials(path string, creds ClientCredentials) error {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return &pkgerrs.IllegalArgumentError{Argument: "credentials", Message: "client id and secret cannot be empty"}
	}
	lines := []string{creds.ClientID, creds.ClientSecret}
	if creds.BaseURL != "" {
		lines = append(lines, creds.BaseURL)
	}
	return writeCredentialLines(path, lines)
}

// ReadAccessToken loads a user token file: the token on the first line and
// optionally the instance base URL on the second.
func ReadAccessToken(path string) (token, baseURL string, err error) {
	lines, err := readCredentialLines(path)
	if err != nil {
		return "", "", err
	}
	if len(lines) == 0 {
		return "", "", &pkgerrs.ConfigError{
			Field:   "AccessTokenFile",
			Message: fmt.Sprintf("%s: file does not contain an access token", path),
		}
	}
	if len(lines) > 1 {
		baseURL = lines[1]
	}
	return lines[0], baseURL, nil
}

// WriteAccessToken persists a user token with mode 0600.
func WriteAccessToken(path, token, baseURL string) error {
	if token == "" {
		return &pkgerrs.IllegalArgumentError{Argument: "token", Message: "access token cannot be empty"}
	}
	lines := []string{token}
	if baseURL != "" {
		lines = append(lines, baseURL)
	}
	return writeCredentialLines(path, lines)
}

// readCredentialLines takes no lock: writers replace the file by rename, so
// a reader always sees a complete file.
func readCredentialLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	return lines, nil
}

// writeCredentialLines replaces the file atomically while holding an
// exclusive lock so that concurrent writers never interleave.
func writeCredentialLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock credential file: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

func lockPath(path string) string {
	return path + ".lock"
}
