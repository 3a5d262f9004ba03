package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureStore implements ObjectStore on an Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore connects with a storage-account connection string and makes
// sure the container exists.
func NewAzureStore(connectionString, container string) (*AzureStore, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, errors.New("azure connection string is required")
	}
	if strings.TrimSpace(container) == "" {
		return nil, errors.New("azure container name is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("init azure blob client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("create container: %w", err)
	}
	return &AzureStore{client: client, container: container}, nil
}

// Put uploads a block blob with the given content type.
func (a *AzureStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	_, err := a.client.UploadStream(ctx, a.container, key, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return fmt.Errorf("upload blob: %w", err)
	}
	return nil
}

func (a *AzureStore) URL(key string) string {
	return a.BaseURL() + "/" + strings.TrimLeft(key, "/")
}

func (a *AzureStore) BaseURL() string {
	return strings.TrimRight(a.client.URL(), "/") + "/" + a.container
}

// PresignGet issues a read-only SAS URL. Requires shared-key credentials in
// the connection string.
func (a *AzureStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
	url, err := blobClient.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().UTC().Add(expiry), nil)
	if err != nil {
		return "", fmt.Errorf("sign blob url: %w", err)
	}
	return url, nil
}

// DeleteIfExists deletes a blob; BlobNotFound counts as success.
func (a *AzureStore) DeleteIfExists(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if err == nil || bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return fmt.Errorf("delete blob: %w", err)
}
