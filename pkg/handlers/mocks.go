// pkg/handlers/mocks.go
package handlers

import (
	"context"

	"asset-cache/pkg/models"

	"github.com/stretchr/testify/mock"
)

// MockCacheService implements CacheServiceInterface for testing
type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetIcon(ctx context.Context, rawURL, domain string) string {
	args := m.Called(ctx, rawURL, domain)
	return args.String(0)
}

func (m *MockCacheService) GetFont(ctx context.Context, fontName, fontURL string) (string, bool) {
	args := m.Called(ctx, fontName, fontURL)
	return args.String(0), args.Bool(1)
}

func (m *MockCacheService) CacheResource(ctx context.Context, rawURL, content, resourceType string) {
	m.Called(ctx, rawURL, content, resourceType)
}

func (m *MockCacheService) GetCachedResource(ctx context.Context, rawURL string) (string, bool) {
	args := m.Called(ctx, rawURL)
	return args.String(0), args.Bool(1)
}

func (m *MockCacheService) GetStorageUsage(ctx context.Context) models.StorageUsage {
	args := m.Called(ctx)
	return args.Get(0).(models.StorageUsage)
}

func (m *MockCacheService) MaybeCleanup(ctx context.Context) *models.CleanupResult {
	args := m.Called(ctx)
	return args.Get(0).(*models.CleanupResult)
}

func (m *MockCacheService) ClearAllCache(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockCacheService) DomainFor(rawURL, override string) string {
	args := m.Called(rawURL, override)
	return args.String(0)
}

// MockBackupService implements BackupServiceInterface for testing
type MockBackupService struct {
	mock.Mock
}

func (m *MockBackupService) Backup(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackupService) Restore(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackupService) Provider() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBackupService) Status() models.BackupStatus {
	args := m.Called()
	return args.Get(0).(models.BackupStatus)
}
