package storage

import (
	"context"
	"io"

	"github.com/kelseyhightower/envconfig"
)

// Uploader stores rendered documents in remote storage. Upload returns
// a stable reference (a shareable link) under the given folder path.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, content io.Reader, folders []string, filename string) (string, error)
}

type Config struct {
	Enabled         bool   `envconfig:"ENABLE_GOOGLE_DRIVE" default:"false"`
	CredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	RootFolderID    string `envconfig:"GOOGLE_DRIVE_ROOT"`
}

// LoadConfig reads the storage configuration from the environment and
// returns the matching uploader.
func LoadConfig(ctx context.Context) (Uploader, error) {
	cfg := &Config{}
	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return &DisabledUploader{}, nil
	}
	return NewDriveUploader(ctx, cfg)
}

// DisabledUploader skips all uploads. Invoices still get rendered and
// mailed, they just carry no storage reference.
type DisabledUploader struct{}

func (u *DisabledUploader) Enabled() bool { return false }

func (u *DisabledUploader) Upload(ctx context.Context, content io.Reader, folders []string, filename string) (string, error) {
	return "", nil
}
