// Package filer delivers export artifacts to the payroll SMB share. It owns
// the connection lifecycle: one scoped connection per job, released on every
// exit path.
package filer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path"
	"time"

	"gorm.io/gorm"

	"otportal/models"
	"otportal/period"
)

// Conn is one live connection to a share. The real implementation wraps
// go-smb2; tests use an in-memory fake.
type Conn interface {
	MkdirAll(dir string) error
	Put(p string, data []byte) error
	Delete(p string) error
	Close() error
}

// Dialer produces a connection from the active SMB configuration with the
// password already decrypted.
type Dialer interface {
	Dial(ctx context.Context, cfg *models.SMBConfiguration, password string) (Conn, error)
}

type Publisher struct {
	db     *gorm.DB
	dialer Dialer
	key    [32]byte
}

func NewPublisher(db *gorm.DB, dialer Dialer, key [32]byte) *Publisher {
	return &Publisher{db: db, dialer: dialer, key: key}
}

// WithConnection resolves the active configuration, dials, runs fn, and
// guarantees release even when fn panics. The connection never outlives fn
// and is never shared between jobs.
func (p *Publisher) WithConnection(ctx context.Context, fn func(c Conn, cfg *models.SMBConfiguration) error) error {
	cfg, err := models.ActiveSMBConfig(p.db)
	if err != nil {
		return err
	}
	password, err := OpenPassword(cfg.PasswordSealed, p.key)
	if err != nil {
		return err
	}

	conn, err := p.dialer.Dial(ctx, cfg, password)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("dial %s: %w", cfg.Hostname, err)}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Printf("[filer] close: %v", cerr)
		}
	}()

	return fn(conn, cfg)
}

// ResolvePeriodFolder joins the configured prefix with the period folder for
// d and creates intermediate directories.
func ResolvePeriodFolder(c Conn, cfg *models.SMBConfiguration, d time.Time) (string, error) {
	folder := path.Join(cfg.PathPrefix, period.FolderName(d))
	if err := c.MkdirAll(folder); err != nil {
		return "", err
	}
	return folder, nil
}

// DeleteQuiet removes a file, tolerating its absence.
func DeleteQuiet(c Conn, p string) error {
	err := c.Delete(p)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[filer] delete %s: already gone", p)
		return nil
	}
	return err
}

// TransientError marks a failure worth retrying: network trouble, timeouts,
// connection resets. Everything else (bad share, malformed path) is final.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient reports whether err should be retried.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
