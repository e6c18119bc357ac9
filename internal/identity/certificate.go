// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package identity

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// CertificateLifetime is how long a server certificate stays valid.
const CertificateLifetime = 30 * 24 * time.Hour

// CertificateSchemaID identifies the certificate properties schema.
const CertificateSchemaID = "https://nexusgrid.dev/schemas/server-certificate.schema.json"

// maxFieldLength bounds a single length-prefixed field of a certificate.
const maxFieldLength = 1 << 16

// CertificateProperties is the JSON stored in a server identity's
// serverCertificateProperties property.
type CertificateProperties struct {
	LastUpdate int64    `json:"lastUpdate" jsonschema:"minimum=0"`
	Expiry     int64    `json:"expiry" jsonschema:"minimum=0"`
	Addresses  []string `json:"addresses"`
	PublicKey  string   `json:"publicKey" jsonschema:"minLength=1"`
	PrivateKey string   `json:"privateKey" jsonschema:"minLength=1"`
}

// ExpiresAt returns the expiry as a time.
func (p *CertificateProperties) ExpiresAt() time.Time {
	return time.UnixMilli(p.Expiry)
}

// GenerateCertificateSchema returns the JSON Schema of CertificateProperties.
func GenerateCertificateSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&CertificateProperties{})
	schema.ID = jsonschema.ID(CertificateSchemaID)
	schema.Title = "NexusGrid Server Certificate"
	schema.Description = "Properties stored with a server identity"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	data, err := GenerateCertificateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource(CertificateSchemaID, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return c.Compile(CertificateSchemaID)
})

// ParseCertificateProperties validates and decodes the stored JSON.
// Anything that does not match the schema is ErrCertificateCorrupt.
func ParseCertificateProperties(raw string) (*CertificateProperties, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, oops.Code("IDENTITY_SCHEMA_FAILED").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
	if err != nil {
		return nil, corrupt(err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, corrupt(err)
	}
	var props CertificateProperties
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, corrupt(err)
	}
	return &props, nil
}

func corrupt(cause error) error {
	return oops.Code("IDENTITY_CERTIFICATE_CORRUPT").With("cause", cause.Error()).Wrap(ErrCertificateCorrupt)
}

// Certificate is the public document handed to clients that connect to a
// server. Its binary form is a sequence of big-endian, 4-byte
// length-prefixed fields: game ID, server ID, the address count followed
// by each address, then the issue and expiry times as 8-byte Unix
// milliseconds, then the PEM public key up to the end.
type Certificate struct {
	GameID    string
	ServerID  string
	Addresses []string
	IssuedAt  int64
	ExpiresAt int64
	PublicKey []byte
}

// MarshalBinary encodes the certificate document.
func (c *Certificate) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, c.GameID)
	writeString(&buf, c.ServerID)
	_ = binary.Write(&buf, binary.BigEndian, int32(len(c.Addresses))) //nolint:gosec // bounded by request size
	for _, addr := range c.Addresses {
		writeString(&buf, addr)
	}
	_ = binary.Write(&buf, binary.BigEndian, c.IssuedAt)
	_ = binary.Write(&buf, binary.BigEndian, c.ExpiresAt)
	buf.Write(c.PublicKey)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a certificate document.
func (c *Certificate) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var out Certificate
	var err error
	if out.GameID, err = readString(r); err != nil {
		return corrupt(err)
	}
	if out.ServerID, err = readString(r); err != nil {
		return corrupt(err)
	}
	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return corrupt(err)
	}
	if count < 0 || int(count) > r.Len()/4 {
		return corrupt(fmt.Errorf("bad address count %d", count))
	}
	out.Addresses = make([]string, 0, count)
	for range count {
		addr, err := readString(r)
		if err != nil {
			return corrupt(err)
		}
		out.Addresses = append(out.Addresses, addr)
	}
	if err := binary.Read(r, binary.BigEndian, &out.IssuedAt); err != nil {
		return corrupt(err)
	}
	if err := binary.Read(r, binary.BigEndian, &out.ExpiresAt); err != nil {
		return corrupt(err)
	}
	if out.PublicKey, err = io.ReadAll(r); err != nil {
		return corrupt(err)
	}
	*c = out
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.BigEndian, int32(len(s))) //nolint:gosec // bounded by request size
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n < 0 || n > maxFieldLength || int(n) > r.Len() {
		return "", fmt.Errorf("bad field length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
