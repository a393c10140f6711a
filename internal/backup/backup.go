// Package backup snapshots the SQLite database, encrypts it with a passphrase
// and keeps the copies in S3-compatible object storage.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/store"
)

var ErrNotConfigured = errors.New("backup not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3         S3Config
	Passphrase string
	// Interval between scheduled snapshots.
	Interval time.Duration
	// Retention is how long snapshots are kept.
	Retention time.Duration
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager takes scheduled and on-demand encrypted snapshots.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time

	// running serializes snapshots.
	running sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, backups *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: backups,
		logger:  logger,
		now:     time.Now,
		status:  Status{State: StateDisabled},
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start runs a snapshot and a retention cleanup every Interval until Stop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	disabled := m.status.State == StateDisabled || m.cfg.Interval <= 0
	m.mu.Unlock()
	if disabled {
		return
	}

	last, err := m.backups.LatestCompleted(ctx)
	if err != nil {
		m.logger.Warn("load latest backup", "error", err)
	}

	m.mu.Lock()
	if last != nil && last.CompletedAt != nil {
		m.status.LastBackup = last.CompletedAt
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scheduled(ctx)
			}
		}
	}()
	m.logger.Info("backup scheduler started", "interval", interval)
}

func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) scheduled(ctx context.Context) {
	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// RunNow snapshots, encrypts and uploads the database, and returns the
// completed backup record.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()
	if client == nil {
		return nil, ErrNotConfigured
	}

	m.running.Lock()
	defer m.running.Unlock()

	start := m.now().UTC()
	key := fmt.Sprintf("backups/%s-%s.db.enc", start.Format("2006-01-02T150405Z"), uuid.NewString()[:8])
	record, err := m.backups.Create(ctx, key, start)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	m.setStatus(Status{State: StateRunning})

	size, err := m.upload(ctx, client, bucket, passphrase, record)
	if err != nil {
		if uerr := m.backups.UpdateStatus(ctx, record.ID, model.BackupFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "backup_id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	finished := m.now().UTC()
	if err := m.backups.UpdateCompleted(ctx, record.ID, size, finished); err != nil {
		return nil, err
	}
	m.setStatus(Status{State: StateIdle, LastBackup: &finished})
	m.logger.Info("backup completed", "backup_id", record.ID, "key", key, "bytes", size)
	return m.backups.GetByID(ctx, record.ID)
}

func (m *Manager) upload(ctx context.Context, client s3Client, bucket, passphrase string, record *model.Backup) (int64, error) {
	if err := m.backups.UpdateStatus(ctx, record.ID, model.BackupUploading, ""); err != nil {
		return 0, err
	}

	dir, err := os.MkdirTemp("", "roktodan-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	// VACUUM INTO yields a consistent copy with WAL contents folded in.
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}

	encrypted := snapshot + ".enc"
	if err := EncryptFile(snapshot, encrypted, passphrase); err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	f, err := os.Open(encrypted)
	if err != nil {
		return 0, fmt.Errorf("open encrypted file: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat encrypted file: %w", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(record.S3Key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return stat.Size(), nil
}

// Restore downloads a backup, decrypts it and verifies its integrity into
// destPath. The live database is left alone; swapping files is an operator
// step done with the server stopped.
func (m *Manager) Restore(ctx context.Context, backupID int64, destPath string) error {
	body, _, err := m.Download(ctx, backupID)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	m.mu.RLock()
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()
	plaintext, err := Open(data, passphrase)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}
	if err := os.WriteFile(destPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored database: %w", err)
	}
	if err := checkIntegrity(ctx, destPath); err != nil {
		os.Remove(destPath)
		return err
	}
	m.logger.Info("backup restored", "backup_id", backupID, "path", destPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Download streams an encrypted backup from object storage.
func (m *Manager) Download(ctx context.Context, backupID int64) (io.ReadCloser, int64, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()
	if client == nil {
		return nil, 0, ErrNotConfigured
	}

	record, err := m.backups.GetByID(ctx, backupID)
	if err != nil {
		return nil, 0, err
	}
	if record == nil || record.Status != model.BackupCompleted {
		return nil, 0, apperr.NotFound("backup", backupID)
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("download from s3: %w", err)
	}
	return result.Body, record.SizeBytes, nil
}

// List returns the most recent backups.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}

// Cleanup removes backups older than Retention, rows first. Objects that fail
// to delete are logged and left behind.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	retention := m.cfg.Retention
	m.mu.RUnlock()
	if client == nil || retention <= 0 {
		return nil
	}

	keys, err := m.backups.DeleteOlderThan(ctx, m.now().Add(-retention))
	if err != nil {
		return err
	}
	var failed []string
	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			failed = append(failed, key)
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("old backups removed", "count", len(keys)-len(failed))
	}
	if len(failed) > 0 {
		return fmt.Errorf("delete %d backup objects: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}
