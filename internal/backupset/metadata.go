package backupset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const MetadataFilename = "metadata.json"

// CollectionRecord describes one collection's outcome within a run.
type CollectionRecord struct {
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Documents  int64         `json:"documents"`
	SizeBytes  int64         `json:"size_bytes"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ms"`
}

// Metadata for a single backup run. Non-normative: restore never depends on
// it, the collection files alone are the backup.
type Metadata struct {
	RunID   string             `json:"run_id"`
	RunAt   time.Time          `json:"run_at"`
	Records []CollectionRecord `json:"backups"`
}

// NewMetadata starts the record for a fresh run.
func NewMetadata() *Metadata {
	return &Metadata{
		RunID: uuid.NewString(),
		RunAt: time.Now().UTC(),
	}
}

// Append adds one collection's outcome.
func (m *Metadata) Append(rec CollectionRecord) {
	m.Records = append(m.Records, rec)
}

// Load reads a metadata file.
func (m *Metadata) Load(filePath string) error {
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	decoder := json.NewDecoder(jsonFile)
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("decode metadata JSON: %w", err)
	}
	return nil
}

// Write stores the metadata at the backup-set root.
func (m *Metadata) Write(root string) error {
	filePath := filepath.Join(root, MetadataFilename)

	if err := EnsureDir(root); err != nil {
		return fmt.Errorf("ensure metadata directory %q: %w", root, err)
	}

	jsonFile, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	return nil
}
