package outputs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Payload is the decoded form of the generated backend outputs document.
// Unknown sections are kept in Raw.
type Payload struct {
	Version string          `json:"version"`
	Auth    *AuthOutputs    `json:"auth,omitempty"`
	Data    *DataOutputs    `json:"data,omitempty"`
	Storage *StorageOutputs `json:"storage,omitempty"`
	API     *APIOutputs     `json:"API,omitempty"`
	Custom  json.RawMessage `json:"custom,omitempty"`

	Raw map[string]json.RawMessage `json:"-"`
}

type AuthOutputs struct {
	Region           string `json:"aws_region"`
	UserPoolId       string `json:"user_pool_id"`
	UserPoolClientId string `json:"user_pool_client_id"`
	IdentityPoolId   string `json:"identity_pool_id"`
}

type DataOutputs struct {
	Url                      string   `json:"url"`
	Region                   string   `json:"aws_region"`
	ApiKey                   string   `json:"api_key"`
	DefaultAuthorizationType string   `json:"default_authorization_type"`
	AuthorizationTypes       []string `json:"authorization_types"`
}

type StorageOutputs struct {
	Region     string `json:"aws_region"`
	BucketName string `json:"bucket_name"`
}

type APIOutputs struct {
	REST map[string]RestEndpoint `json:"REST"`
}

type RestEndpoint struct {
	Endpoint string `json:"endpoint"`
	Region   string `json:"region,omitempty"`
}

func Load(path string) (*Payload, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("outputs file %s does not exist: %w", path, err)
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to eval symlink for %s: %w", path, err)
	}
	data, err := os.ReadFile(realPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs file %s: %w", realPath, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", realPath, err)
	}
	return p, nil
}

func Parse(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse outputs JSON: %w", err)
	}
	if err := json.Unmarshal(data, &p.Raw); err != nil {
		return nil, fmt.Errorf("failed to parse outputs JSON: %w", err)
	}
	if p.Version == "" {
		return nil, fmt.Errorf("outputs: missing version")
	}
	return &p, nil
}

// Region returns the first region found in the auth, data and storage sections.
func (p *Payload) Region() string {
	if p.Auth != nil && p.Auth.Region != "" {
		return p.Auth.Region
	}
	if p.Data != nil && p.Data.Region != "" {
		return p.Data.Region
	}
	if p.Storage != nil && p.Storage.Region != "" {
		return p.Storage.Region
	}
	return ""
}
