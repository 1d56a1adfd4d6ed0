// Package archive keeps raw connector batches as timestamped JSON blobs
// for later replay and debugging. Archival is optional and best-effort.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"
)

// Archiver stores one connector's raw batch for one project run.
type Archiver interface {
	StoreBatch(ctx context.Context, projectID, connector string, batch any) error
}

// BlobArchiver writes batches to Azure Blob Storage using managed
// identity.
type BlobArchiver struct {
	client        *azblob.Client
	containerName string
}

var _ Archiver = (*BlobArchiver)(nil)

// NewBlobArchiver creates the archiver and ensures its container exists.
func NewBlobArchiver(accountName, containerName string) (*BlobArchiver, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	a := &BlobArchiver{client: client, containerName: containerName}
	if err := a.ensureContainer(); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return a, nil
}

func (a *BlobArchiver) ensureContainer() error {
	_, err := a.client.CreateContainer(context.Background(), a.containerName, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return fmt.Errorf("failed to create container: %w", err)
		}
		logrus.Debugf("Container %s already exists", a.containerName)
	}
	return nil
}

// StoreBatch uploads the batch as JSON under
// <project>/<connector>/<timestamp>.json.
func (a *BlobArchiver) StoreBatch(ctx context.Context, projectID, connector string, batch any) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	name := fmt.Sprintf("%s/%s/%s.json", projectID, connector, time.Now().UTC().Format("2006-01-02-15-04-05"))
	_, err = a.client.UploadBuffer(ctx, a.containerName, name, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", name, err)
	}

	logrus.Debugf("Archived raw batch %s", name)
	return nil
}
