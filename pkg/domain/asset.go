package domain

import "time"

// AssetRecord is the read-through cached projection of an inventory
// service record.
type AssetRecord struct {
	AssetID          string
	Name             string
	Hostname         string
	IPAddress        string
	OSType           string
	OSVersion        string
	Environment      string
	ServiceType      string
	Port             int
	IsSecure         bool
	CredentialType   string
	IsActive         bool
	ConnectionStatus string
	UpdatedAt        time.Time
}

// ConnectionProfile describes how to reach a given asset.
type ConnectionProfile struct {
	Host     string
	Port     int
	Protocol string
	Secure   bool
}

// Credential is the secrets-broker row: (host, purpose) -> encrypted
// material. Plaintext is never a field on this type outside the broker's
// own encrypt/decrypt boundary.
type Credential struct {
	Host       string
	Purpose    string
	Username   string
	Ciphertext []byte
	Domain     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
