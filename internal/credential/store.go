package credential

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sectionKey is the mapping that holds the credential in the config file.
const sectionKey = "credential"

// FileStore keeps the credential in the "credential" section of a YAML
// config file. Other keys and comments in the file are left untouched.
type FileStore struct {
	Path string
}

// Static serves a fixed credential, e.g. one assembled from environment
// variables.
type Static Credential

// Load returns the credential.
func (s Static) Load() (Credential, error) {
	return Credential(s), nil
}

// NewFileStore creates a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the credential section. A missing file or section yields an
// empty Credential.
func (s *FileStore) Load() (Credential, error) {
	doc, err := s.read()
	if err != nil {
		return Credential{}, err
	}

	section := lookup(rootMapping(doc), sectionKey)
	if section == nil {
		return Credential{}, nil
	}

	var cred Credential
	if err := section.Decode(&cred); err != nil {
		return Credential{}, fmt.Errorf("decode %s section: %w", sectionKey, err)
	}
	return cred, nil
}

// Save writes the credential section, creating the file if needed.
func (s *FileStore) Save(cred Credential) error {
	doc, err := s.read()
	if err != nil {
		return err
	}

	root := rootMapping(doc)
	if root == nil {
		root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc.Kind = yaml.DocumentNode
		doc.Content = []*yaml.Node{root}
	}

	section := lookup(root, sectionKey)
	switch {
	case section == nil:
		section = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: sectionKey},
			section,
		)
	case section.Kind != yaml.MappingNode:
		*section = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	setScalar(section, "encrypted_api_key", cred.EncryptedAPIKey)
	setScalar(section, "aes_key", cred.AESKey)
	setScalar(section, "aes_iv", cred.AESIV)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func (s *FileStore) read() (*yaml.Node, error) {
	doc := &yaml.Node{}

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.Path, err)
	}
	return doc, nil
}

func rootMapping(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	if root := doc.Content[0]; root.Kind == yaml.MappingNode {
		return root
	}
	return nil
}

// lookup returns the value node for key in a mapping node.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func setScalar(mapping *yaml.Node, key, value string) {
	if node := lookup(mapping, key); node != nil {
		node.Kind = yaml.ScalarNode
		node.Tag = "!!str"
		node.Value = value
		node.Content = nil
		return
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
