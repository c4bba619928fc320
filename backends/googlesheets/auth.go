package googlesheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ServiceAccountKey represents the structure of a service account JSON key file
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// NewWithJSONKeyFile creates a backend authenticated by a service account key file.
// An empty path falls back to GOOGLE_APPLICATION_CREDENTIALS.
func NewWithJSONKeyFile(ctx context.Context, config Config, jsonPath string) (*Backend, error) {
	if jsonPath == "" {
		jsonPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		if jsonPath == "" {
			return nil, fmt.Errorf("no JSON key file path provided and GOOGLE_APPLICATION_CREDENTIALS not set")
		}
	}

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON key file: %w", err)
	}
	return NewWithJSONKeyData(ctx, config, jsonData)
}

// NewWithJSONKeyData creates a backend from service account key JSON
func NewWithJSONKeyData(ctx context.Context, config Config, jsonData []byte) (*Backend, error) {
	if _, err := ParseServiceAccountJSON(jsonData); err != nil {
		return nil, err
	}
	ts, err := createTokenSourceFromJSON(ctx, jsonData)
	if err != nil {
		return nil, err
	}
	return NewBackend(ctx, config, option.WithTokenSource(ts))
}

// NewWithServiceAccountKey creates a backend using email and private key
func NewWithServiceAccountKey(ctx context.Context, config Config, email string, privateKey string) (*Backend, error) {
	ts, err := createTokenSourceFromKey(ctx, &ServiceAccountKey{ClientEmail: email, PrivateKey: privateKey})
	if err != nil {
		return nil, err
	}
	return NewBackend(ctx, config, option.WithTokenSource(ts))
}

// NewWithDefaultCredentials creates a backend using Application Default Credentials
func NewWithDefaultCredentials(ctx context.Context, config Config) (*Backend, error) {
	// GOOGLE_APPLICATION_CREDENTIALS, then gcloud credentials, then the GCE metadata service
	tokenSource, err := google.DefaultTokenSource(ctx, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to get default token source: %w", err)
	}
	return NewBackend(ctx, config, option.WithTokenSource(tokenSource))
}

// ParseServiceAccountJSON parses a service account JSON file or data
func ParseServiceAccountJSON(jsonData []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(jsonData, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}

	if key.Type != "service_account" {
		return nil, fmt.Errorf("invalid key type: %s (expected: service_account)", key.Type)
	}

	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("missing required fields in service account key")
	}

	return &key, nil
}

// CreateTokenSource creates an oauth2.TokenSource from a key file path, key
// JSON or a parsed key.
func CreateTokenSource(ctx context.Context, credentials interface{}) (oauth2.TokenSource, error) {
	switch cred := credentials.(type) {
	case string:
		jsonData, err := os.ReadFile(cred)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return createTokenSourceFromJSON(ctx, jsonData)
	case []byte:
		return createTokenSourceFromJSON(ctx, cred)
	case *ServiceAccountKey:
		return createTokenSourceFromKey(ctx, cred)
	default:
		return nil, fmt.Errorf("unsupported credential type: %T", credentials)
	}
}

func createTokenSourceFromJSON(ctx context.Context, jsonData []byte) (oauth2.TokenSource, error) {
	creds, err := google.CredentialsFromJSON(ctx, jsonData, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds.TokenSource, nil
}

func createTokenSourceFromKey(ctx context.Context, key *ServiceAccountKey) (oauth2.TokenSource, error) {
	tokenURL := key.TokenURI
	if tokenURL == "" {
		tokenURL = google.JWTTokenURL
	}
	jwtConfig := &jwt.Config{
		Email:      key.ClientEmail,
		PrivateKey: []byte(key.PrivateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   tokenURL,
	}
	return jwtConfig.TokenSource(ctx), nil
}
