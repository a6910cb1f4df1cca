// Package mocks provides mock implementations for testing the docpipe services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, Counts, ListFailed, RetryFailed, Ping
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/mmk-docpipe/internal/core JobRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// DeleteOldJobs, RequeueExpiredLeases
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/mmk-docpipe/internal/core ReaperRepository

// Generate mock for DocumentRepository interface from internal/core package.
// This creates MockDocumentRepository with methods for all DocumentRepository interface methods:
// Create, GetByID, GetByStorageKey, CompleteScan, ListByOwner, SoftDelete, Ping
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=document_repository_mock.go github.com/target/mmk-docpipe/internal/core DocumentRepository

// Generate mock for AuditRepository interface from internal/core package.
// This creates MockAuditRepository with methods for all AuditRepository interface methods:
// Insert, Query
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_repository_mock.go github.com/target/mmk-docpipe/internal/core AuditRepository

// Generate mock for ObjectStorage interface from internal/core package.
// This creates MockObjectStorage with methods for all ObjectStorage interface methods:
// Bucket, IssueUploadURL, IssueDownloadURL, StatObject, OpenObject, Ping
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=object_storage_mock.go github.com/target/mmk-docpipe/internal/core ObjectStorage

// Generate mock for Scanner interface from internal/core package.
// This creates MockScanner with methods for all Scanner interface methods:
// Scan
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=scanner_mock.go github.com/target/mmk-docpipe/internal/core Scanner

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, SetNX, Get, Delete, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/mmk-docpipe/internal/core CacheRepository

// Generate mock for JobEnqueuer interface from internal/core package.
// This creates MockJobEnqueuer with methods for all JobEnqueuer interface methods:
// Enqueue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_enqueuer_mock.go github.com/target/mmk-docpipe/internal/core JobEnqueuer

// Generate mock for AuditRecorder interface from internal/core package.
// This creates MockAuditRecorder with methods for all AuditRecorder interface methods:
// LogAsync
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_recorder_mock.go github.com/target/mmk-docpipe/internal/core AuditRecorder

// Generate mock for RequesterVerifier interface from internal/ports package.
// This creates MockRequesterVerifier with methods for all RequesterVerifier interface methods:
// Verify
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=requester_verifier_mock.go github.com/target/mmk-docpipe/internal/ports RequesterVerifier
