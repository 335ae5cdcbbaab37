package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	cfg "asset-cache/config"
	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/models"
	"asset-cache/pkg/utils"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// snapshotObjectKey is the object name of the snapshot in every provider
const snapshotObjectKey = "asset-cache/assets.db"

// BackupService uploads SQLite snapshots of the store to a cloud bucket and
// downloads them back for restore on the next start.
type BackupService struct {
	pathManager       *utils.PathManager
	lifecycle         *Lifecycle
	config            *cfg.Config
	log               *utils.Logger
	awsSession        *session.Session
	s3Client          *s3.S3
	gcsClient         *gcs.Client
	azureContainerURL azblob.ContainerURL

	mu           sync.Mutex
	lastBackupAt time.Time
	lastError    string
}

// NewBackupService returns nil, nil when backup is disabled or no provider
// is configured.
func NewBackupService(config *cfg.Config, lifecycle *Lifecycle, pathManager *utils.PathManager, log *utils.Logger) (*BackupService, error) {
	if config == nil {
		return nil, fmt.Errorf("❌ invalid configuration: config is nil")
	}

	if log == nil {
		return nil, fmt.Errorf("❌ logger is nil")
	}

	srv := &BackupService{
		pathManager: pathManager,
		lifecycle:   lifecycle,
		config:      config,
		log:         log,
	}

	if !config.Backup.Enabled {
		log.WithFunc().Info("Backup is disabled")
		return nil, nil
	}
	if config.Storage.Driver != "sqlite" {
		log.WithFunc().WithField("driver", config.Storage.Driver).Warn("Backup only supports the sqlite driver, disabling")
		return nil, nil
	}

	secrets := cfg.LoadSecrets()
	log.WithFunc().WithField("provider", config.Backup.Provider).Info("Backup is enabled")
	// Initialisation du client cloud
	switch {
	case config.Backup.Provider == "aws" && config.Backup.AWS.Bucket != "":
		if err := srv.initAWSClient(secrets.AWSAccessKeyID, secrets.AWSSecretAccessKey); err != nil {
			return nil, fmt.Errorf("❌ failed to initialize AWS client: %w", err)
		}
	case config.Backup.Provider == "gcp" && config.Backup.GCP.Bucket != "":
		if err := srv.initGCPClient(secrets.GCPCredentialsFile); err != nil {
			return nil, fmt.Errorf("❌ failed to initialize GCP client: %w", err)
		}
	case config.Backup.Provider == "azure" && config.Backup.Azure.Container != "":
		if err := srv.initAzureClient(secrets.AzureStorageAccountKey); err != nil {
			return nil, fmt.Errorf("❌ failed to initialize Azure client: %w", err)
		}
	default:
		// No backup provider configured
		log.WithFunc().Info("No backup provider configured")
		return nil, nil
	}

	return srv, nil
}

// Provider returns the configured provider name
func (s *BackupService) Provider() string {
	return s.config.Backup.Provider
}

// Status reports the last backup and whether a restore awaits restart
func (s *BackupService) Status() models.BackupStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := models.BackupStatus{
		Enabled:        true,
		Provider:       s.Provider(),
		PendingRestore: s.pathManager.HasPendingRestore(),
		LastError:      s.lastError,
	}
	if !s.lastBackupAt.IsZero() {
		t := s.lastBackupAt
		status.LastBackupAt = &t
	}
	return status
}

func (s *BackupService) initAWSClient(accessKey, secretKey string) error {
	s.log.WithFunc().WithFields(logrus.Fields{
		"region":   s.config.Backup.AWS.Region,
		"bucket":   s.config.Backup.AWS.Bucket,
		"endpoint": s.config.Backup.AWS.Endpoint,
	}).Debug("Initializing AWS client")

	if accessKey == "" || secretKey == "" {
		return fmt.Errorf("AWS credentials not provided")
	}
	awsConfig := &aws.Config{
		Region:      aws.String(s.config.Backup.AWS.Region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	}
	if endpoint := s.config.Backup.AWS.Endpoint; endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}

	s.awsSession = sess
	s.s3Client = s3.New(sess)
	return nil
}

func (s *BackupService) initGCPClient(credentialsFile string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.config.Backup.GCP.ProjectID == "" {
		return fmt.Errorf("GCP project ID is not configured")
	}
	if credentialsFile == "" {
		return fmt.Errorf("GCP credentials file path not provided")
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		s.log.WithFunc().WithError(err).WithField("credentialsPath", credentialsFile).Error("Credentials file check failed")
		return fmt.Errorf("credentials file not found: %w", err)
	}

	client, err := gcs.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return fmt.Errorf("failed to create GCP client: %w", err)
	}

	attrs, err := client.Bucket(s.config.Backup.GCP.Bucket).Attrs(ctx)
	if err != nil {
		client.Close()
		if err == gcs.ErrBucketNotExist {
			s.log.WithFunc().WithField("bucket", s.config.Backup.GCP.Bucket).Error("Bucket does not exist")
			return fmt.Errorf("bucket %s does not exist in project %s", s.config.Backup.GCP.Bucket, s.config.Backup.GCP.ProjectID)
		}
		// Autres types d'erreurs (permissions, réseau, etc.)
		s.log.WithFunc().WithError(err).WithField("bucket", s.config.Backup.GCP.Bucket).Error("Failed to access bucket")
		return fmt.Errorf("failed to access bucket %s: %w", s.config.Backup.GCP.Bucket, err)
	}

	s.log.WithFunc().WithFields(logrus.Fields{
		"bucket":   s.config.Backup.GCP.Bucket,
		"location": attrs.Location,
	}).Info("Successfully connected to GCP bucket")

	s.gcsClient = client
	return nil
}

func (s *BackupService) initAzureClient(accountKey string) error {
	s.log.WithFunc().WithFields(logrus.Fields{
		"storageAccount": s.config.Backup.Azure.StorageAccount,
		"container":      s.config.Backup.Azure.Container,
	}).Debug("Initializing Azure client")

	if s.config.Backup.Azure.StorageAccount == "" {
		return fmt.Errorf("Azure storage account name is not configured")
	}
	if accountKey == "" {
		return fmt.Errorf("Azure storage account key not provided")
	}

	credential, err := azblob.NewSharedKeyCredential(s.config.Backup.Azure.StorageAccount, accountKey)
	if err != nil {
		return fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	containerURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s",
		s.config.Backup.Azure.StorageAccount,
		s.config.Backup.Azure.Container))
	if err != nil {
		return fmt.Errorf("failed to parse container URL: %w", err)
	}

	s.azureContainerURL = azblob.NewContainerURL(*containerURL, pipeline)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = s.azureContainerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		// Tentative de création du container s'il n'existe pas
		if storageErr, ok := err.(azblob.StorageError); ok && storageErr.ServiceCode() == azblob.ServiceCodeContainerNotFound {
			s.log.WithFunc().WithField("container", s.config.Backup.Azure.Container).Info("Container does not exist, creating it")
			if _, err := s.azureContainerURL.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone); err != nil {
				return fmt.Errorf("failed to create container %s: %w", s.config.Backup.Azure.Container, err)
			}
		} else {
			return fmt.Errorf("failed to access Azure container %s: %w", s.config.Backup.Azure.Container, err)
		}
	}

	s.log.WithFunc().WithField("container", s.config.Backup.Azure.Container).Info("Azure client initialized successfully")
	return nil
}

// Backup snapshots the live store and uploads the snapshot
func (s *BackupService) Backup(ctx context.Context) error {
	s.log.WithFunc().Debug("Starting backup process")

	err := s.backup(ctx)

	s.mu.Lock()
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
		s.lastBackupAt = time.Now().UTC()
	}
	s.mu.Unlock()

	return err
}

func (s *BackupService) backup(ctx context.Context) error {
	store, err := s.lifecycle.Instance().Store(ctx)
	if err != nil {
		return fmt.Errorf("cannot snapshot: %w", err)
	}
	snapshotter, ok := store.(interfaces.Snapshotter)
	if !ok {
		return fmt.Errorf("storage driver %s does not support snapshots", s.config.Storage.Driver)
	}

	snapshotPath := s.pathManager.GetSnapshotPath()
	if err := snapshotter.Snapshot(ctx, snapshotPath); err != nil {
		s.log.WithFunc().WithError(err).WithField("path", snapshotPath).Error("Snapshot failed")
		return fmt.Errorf("failed to snapshot store: %w", err)
	}
	defer os.Remove(snapshotPath)

	file, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	s.log.WithFunc().WithFields(logrus.Fields{
		"provider": s.Provider(),
		"key":      snapshotObjectKey,
		"size":     info.Size(),
	}).Debug("Uploading snapshot")

	switch {
	case s.awsSession != nil:
		err = s.uploadToAWS(ctx, file)
	case s.gcsClient != nil:
		err = s.uploadToGCP(ctx, file)
	case s.azureContainerURL.URL().Host != "":
		err = s.uploadToAzure(ctx, file)
	default:
		return fmt.Errorf("no backup provider configured")
	}
	if err != nil {
		s.log.WithFunc().WithError(err).Error("Failed to upload snapshot")
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	s.log.WithFunc().WithField("provider", s.Provider()).Info("Backup completed")
	return nil
}

func (s *BackupService) uploadToAWS(ctx context.Context, file *os.File) error {
	uploader := s3manager.NewUploader(s.awsSession)
	_, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.config.Backup.AWS.Bucket),
		Key:    aws.String(snapshotObjectKey),
		Body:   file,
	})
	return err
}

func (s *BackupService) uploadToGCP(ctx context.Context, file *os.File) error {
	writer := s.gcsClient.Bucket(s.config.Backup.GCP.Bucket).Object(snapshotObjectKey).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (s *BackupService) uploadToAzure(ctx context.Context, file *os.File) error {
	blobURL := s.azureContainerURL.NewBlockBlobURL(snapshotObjectKey)
	_, err := azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024, // 4MB blocks
		Parallelism: 16,
	})
	return err
}

// Restore downloads the latest snapshot next to the live store. It is
// swapped in by PathManager.ApplyPendingRestore on the next start.
func (s *BackupService) Restore(ctx context.Context) error {
	s.log.WithFunc().Debug("Starting restore process")

	pending := s.pathManager.GetRestorePendingPath()
	partial := pending + ".part"

	file, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create restore file: %w", err)
	}

	switch {
	case s.awsSession != nil:
		err = s.downloadFromAWS(ctx, file)
	case s.gcsClient != nil:
		err = s.downloadFromGCP(ctx, file)
	case s.azureContainerURL.URL().Host != "":
		err = s.downloadFromAzure(ctx, file)
	default:
		err = fmt.Errorf("no restore provider configured")
	}
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		s.log.WithFunc().WithError(err).Error("Restore failed")
		return fmt.Errorf("failed to download snapshot: %w", err)
	}

	if err := os.Rename(partial, pending); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("failed to stage restore: %w", err)
	}

	s.log.WithFunc().WithField("path", pending).Info("Snapshot downloaded, restore applies on next start")
	return nil
}

func (s *BackupService) downloadFromAWS(ctx context.Context, file *os.File) error {
	downloader := s3manager.NewDownloader(s.awsSession)
	_, err := downloader.DownloadWithContext(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Backup.AWS.Bucket),
		Key:    aws.String(snapshotObjectKey),
	})
	return err
}

func (s *BackupService) downloadFromGCP(ctx context.Context, file *os.File) error {
	reader, err := s.gcsClient.Bucket(s.config.Backup.GCP.Bucket).Object(snapshotObjectKey).NewReader(ctx)
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(file, reader)
	return err
}

func (s *BackupService) downloadFromAzure(ctx context.Context, file *os.File) error {
	blobURL := s.azureContainerURL.NewBlockBlobURL(snapshotObjectKey)
	return azblob.DownloadBlobToFile(ctx, blobURL.BlobURL, 0, azblob.CountToEnd, file, azblob.DownloadFromBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
	})
}

var _ interfaces.BackupServiceInterface = (*BackupService)(nil)
