package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveUploader stores documents in Google Drive, creating the folder
// hierarchy under the configured root as needed.
type DriveUploader struct {
	service *drive.Service
	rootID  string
}

func NewDriveUploader(ctx context.Context, cfg *Config) (*DriveUploader, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(drive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveUploader{service: service, rootID: cfg.RootFolderID}, nil
}

func (u *DriveUploader) Enabled() bool { return true }

// Upload walks the folder path below the root, creating missing
// folders, then uploads the file and returns its web link.
func (u *DriveUploader) Upload(ctx context.Context, content io.Reader, folders []string, filename string) (string, error) {
	parentID := u.rootID
	for _, folder := range folders {
		id, err := u.findOrCreateFolder(ctx, parentID, folder)
		if err != nil {
			return "", err
		}
		parentID = id
	}

	file, err := u.service.Files.Create(&drive.File{
		Name:    filename,
		Parents: []string{parentID},
	}).Media(content).Fields(googleapi.Field("id"), googleapi.Field("webViewLink")).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	return file.WebViewLink, nil
}

func (u *DriveUploader) findOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = 'application/vnd.google-apps.folder' and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), parentID)
	list, err := u.service.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up drive folder %s: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := u.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create drive folder %s: %w", name, err)
	}
	return folder.Id, nil
}
