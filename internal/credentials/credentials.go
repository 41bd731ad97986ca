// Package credentials loads the static access keys used by the object
// storage backends, either from the environment or from a passwd file.
package credentials

import (
	"fmt"
	"os"
	"strings"
)

// Credentials holds a static access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// FromEnvironment reads AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and the
// optional AWS_SESSION_TOKEN. It returns nil without error when no keys
// are set, so the SDK's default credential chain can take over.
func FromEnvironment() (*Credentials, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" && secretKey == "" {
		return nil, nil
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must both be set")
	}
	return &Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}, nil
}

// FromPasswdFile reads a passwd file in ACCESS_KEY:SECRET_KEY format.
func FromPasswdFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read passwd file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	parts := strings.SplitN(content, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid passwd file format, expected ACCESS_KEY:SECRET_KEY")
	}

	return &Credentials{
		AccessKeyID:     strings.TrimSpace(parts[0]),
		SecretAccessKey: strings.TrimSpace(parts[1]),
	}, nil
}

// IsValid reports whether both the access key and secret are set.
func (c *Credentials) IsValid() bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != ""
}
