package filer_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"otportal/database"
	"otportal/filer"
	"otportal/models"
)

var testKey = [32]byte{42}

func TestSealOpenPassword_RoundTrip(t *testing.T) {
	sealed, err := filer.SealPassword("hunter2", testKey)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hunter2")

	plain, err := filer.OpenPassword(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	// Same password seals differently every time.
	again, err := filer.SealPassword("hunter2", testKey)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestOpenPassword_WrongKeyOrGarbage(t *testing.T) {
	sealed, err := filer.SealPassword("hunter2", testKey)
	require.NoError(t, err)

	wrong := [32]byte{7}
	_, err = filer.OpenPassword(sealed, wrong)
	assert.ErrorIs(t, err, filer.ErrDecrypt)

	_, err = filer.OpenPassword([]byte("short"), testKey)
	assert.ErrorIs(t, err, filer.ErrDecrypt)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = filer.OpenPassword(tampered, testKey)
	assert.ErrorIs(t, err, filer.ErrDecrypt)
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestTransient_Classification(t *testing.T) {
	assert.False(t, filer.Transient(nil))
	assert.False(t, filer.Transient(errors.New("share not found")))
	assert.False(t, filer.Transient(models.ErrNoActiveSMBConfig))

	assert.True(t, filer.Transient(&filer.TransientError{Err: errors.New("reset")}))
	assert.True(t, filer.Transient(fmt.Errorf("put: %w", &filer.TransientError{Err: errors.New("reset")})))
	var ne net.Error = timeoutErr{}
	assert.True(t, filer.Transient(ne))
	assert.True(t, filer.Transient(context.DeadlineExceeded))
	assert.True(t, filer.Transient(os.ErrDeadlineExceeded))
}

type stubConn struct {
	deleteErr error
	closed    int
}

func (c *stubConn) MkdirAll(dir string) error    { return nil }
func (c *stubConn) Put(p string, d []byte) error { return nil }
func (c *stubConn) Delete(p string) error        { return c.deleteErr }
func (c *stubConn) Close() error                 { c.closed++; return nil }

type stubDialer struct {
	conn *stubConn
	err  error
}

func (d *stubDialer) Dial(ctx context.Context, cfg *models.SMBConfiguration, password string) (filer.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func newFilerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedConfig(t *testing.T, db *gorm.DB, active bool) {
	t.Helper()
	sealed, err := filer.SealPassword("hunter2", testKey)
	require.NoError(t, err)
	cfg := models.SMBConfiguration{
		Hostname: "filer.local", Port: 445, Share: "payroll",
		Username: "svc-ot", PasswordSealed: sealed,
		PathPrefix: "OT", IsActive: active,
	}
	require.NoError(t, db.Create(&cfg).Error)
}

func TestWithConnection_DecryptsAndReleases(t *testing.T) {
	db := newFilerDB(t)
	seedConfig(t, db, true)
	conn := &stubConn{}
	pub := filer.NewPublisher(db, &stubDialer{conn: conn}, testKey)

	var seen string
	err := pub.WithConnection(context.Background(), func(c filer.Conn, cfg *models.SMBConfiguration) error {
		seen = cfg.Share
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payroll", seen)
	assert.Equal(t, 1, conn.closed)
}

func TestWithConnection_ReleasesOnCallbackError(t *testing.T) {
	db := newFilerDB(t)
	seedConfig(t, db, true)
	conn := &stubConn{}
	pub := filer.NewPublisher(db, &stubDialer{conn: conn}, testKey)

	boom := errors.New("disk full")
	err := pub.WithConnection(context.Background(), func(c filer.Conn, cfg *models.SMBConfiguration) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, conn.closed)
}

func TestWithConnection_NoActiveConfig(t *testing.T) {
	db := newFilerDB(t)
	seedConfig(t, db, false)
	pub := filer.NewPublisher(db, &stubDialer{conn: &stubConn{}}, testKey)

	err := pub.WithConnection(context.Background(), func(filer.Conn, *models.SMBConfiguration) error {
		t.Fatal("must not dial without an active configuration")
		return nil
	})
	assert.ErrorIs(t, err, models.ErrNoActiveSMBConfig)
}

func TestWithConnection_DialFailureWrapsTransient(t *testing.T) {
	db := newFilerDB(t)
	seedConfig(t, db, true)
	pub := filer.NewPublisher(db, &stubDialer{err: errors.New("connection refused")}, testKey)

	err := pub.WithConnection(context.Background(), func(filer.Conn, *models.SMBConfiguration) error {
		t.Fatal("callback must not run when dialing fails")
		return nil
	})
	require.Error(t, err)
	assert.True(t, filer.Transient(err))
}

func TestWithConnection_WrongKeyFailsBeforeDialing(t *testing.T) {
	db := newFilerDB(t)
	seedConfig(t, db, true)
	wrong := [32]byte{9, 9}
	pub := filer.NewPublisher(db, &stubDialer{conn: &stubConn{}}, wrong)

	err := pub.WithConnection(context.Background(), func(filer.Conn, *models.SMBConfiguration) error {
		t.Fatal("callback must not run with an undecryptable password")
		return nil
	})
	assert.ErrorIs(t, err, filer.ErrDecrypt)
}

func TestDeleteQuiet_ToleratesAbsence(t *testing.T) {
	gone := &stubConn{deleteErr: fmt.Errorf("remove x: %w", os.ErrNotExist)}
	assert.NoError(t, filer.DeleteQuiet(gone, "x"))

	denied := &stubConn{deleteErr: os.ErrPermission}
	assert.Error(t, filer.DeleteQuiet(denied, "x"))

	ok := &stubConn{}
	assert.NoError(t, filer.DeleteQuiet(ok, "x"))
}

func TestResolvePeriodFolder_JoinsPrefix(t *testing.T) {
	conn := &recordingConn{}
	cfg := &models.SMBConfiguration{PathPrefix: "OT/exports"}
	d := time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC)

	folder, err := filer.ResolvePeriodFolder(conn, cfg, d)
	require.NoError(t, err)
	assert.Equal(t, "OT/exports/2025-02-26_2025-03-25", folder)
	assert.Equal(t, []string{"OT/exports/2025-02-26_2025-03-25"}, conn.mkdirs)
}

type recordingConn struct {
	stubConn
	mkdirs []string
}

func (c *recordingConn) MkdirAll(dir string) error {
	c.mkdirs = append(c.mkdirs, dir)
	return nil
}
