package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"otportal/database"
	"otportal/filer"
	"otportal/models"
	"otportal/period"
	"otportal/rollup"
)

// fakeConn is an in-memory share.
type fakeConn struct {
	mu     sync.Mutex
	files  map[string][]byte
	dirs   map[string]bool
	closes int
}

func newFakeConn() *fakeConn {
	return &fakeConn{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (c *fakeConn) MkdirAll(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[dir] = true
	return nil
}

func (c *fakeConn) Put(p string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[p] = append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Delete(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.files[p]; !ok {
		return fmt.Errorf("delete %s: %w", p, os.ErrNotExist)
	}
	delete(c.files, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for name := range c.files {
		out = append(out, name)
	}
	return out
}

func (c *fakeConn) get(p string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[p]
}

type fakeDialer struct {
	conn     *fakeConn
	mu       sync.Mutex
	failures int
	dials    int
}

func (d *fakeDialer) Dial(ctx context.Context, cfg *models.SMBConfiguration, password string) (filer.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, fmt.Errorf("connection refused")
	}
	return d.conn, nil
}

var testKey = [32]byte{1, 2, 3, 4}

type fixture struct {
	db     *gorm.DB
	conn   *fakeConn
	dialer *fakeDialer
	orch   *Orchestrator

	department models.Department
	emps       map[string]models.Employee
	project    models.Project
	creator    models.ExternalUser
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &fixture{db: db, conn: newFakeConn(), emps: make(map[string]models.Employee)}
	f.dialer = &fakeDialer{conn: f.conn}

	f.department = models.Department{Code: "ASM", Name: "Assembly", IsEnabled: true}
	require.NoError(t, db.Create(&f.department).Error)
	for empID, name := range map[string]string{
		"MW2400549": "Ada Marsh",
		"MW2400123": "Ben Okafor",
	} {
		emp := models.Employee{EmpID: empID, Name: name, IsEnabled: true, DepartmentID: &f.department.ID}
		require.NoError(t, db.Create(&emp).Error)
		f.emps[empID] = emp
	}
	f.project = models.Project{Code: "P1", Name: "Line Upgrade", IsEnabled: true}
	require.NoError(t, db.Create(&f.project).Error)
	f.creator = models.ExternalUser{ExternalID: 1001, Username: "ada", Role: models.RoleUser, IsActive: true}
	require.NoError(t, db.Create(&f.creator).Error)

	sealed, err := filer.SealPassword("hunter2", testKey)
	require.NoError(t, err)
	cfg := models.SMBConfiguration{
		Hostname: "filer.local", Port: 445, Share: "payroll",
		Username: "svc-ot", PasswordSealed: sealed, PathPrefix: "OT", IsActive: true,
	}
	require.NoError(t, db.Create(&cfg).Error)

	pub := filer.NewPublisher(db, f.dialer, testKey)
	f.orch = NewOrchestrator(db, rollup.New(db), pub, opts)
	t.Cleanup(f.orch.Stop)
	return f
}

func (f *fixture) seedApproved(t *testing.T, empID string, d time.Time, startHour, hours int) models.OvertimeRequest {
	t.Helper()
	emp := f.emps[empID]
	req := models.OvertimeRequest{
		RequestDate:    d,
		EmployeeID:     emp.ID,
		ProjectID:      f.project.ID,
		DepartmentID:   f.department.ID,
		DepartmentCode: f.department.Code,
		PlannedStart:   d.Add(time.Duration(startHour) * time.Hour),
		PlannedEnd:     d.Add(time.Duration(startHour+hours) * time.Hour),
		Hours:          decimal.NewFromInt(int64(hours)),
		Status:         models.StatusApproved,
		CreatedByID:    f.creator.ID,
	}
	require.NoError(t, f.db.Create(&req).Error)
	return req
}

func (f *fixture) softDelete(t *testing.T, req models.OvertimeRequest) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.db.Model(&models.OvertimeRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error)
}

func artifactPath(d time.Time, name string) string {
	return path.Join("OT", period.FolderName(d), name)
}

func dayOf(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestExport_PublishesAllFourArtifacts(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)
	f.seedApproved(t, "MW2400549", d, 18, 4)

	require.NoError(t, f.orch.Export(context.Background(), d))

	want := []string{
		artifactPath(d, "20250227OT.xlsx"),
		artifactPath(d, "20250227OTSummary.xlsx"),
		artifactPath(d, "~2025_02_26-2025_03_25OT.xlsx"),
		artifactPath(d, "~2025_02_26-2025_03_25OTSummary.xlsx"),
	}
	assert.ElementsMatch(t, want, f.conn.names())
	assert.Equal(t, 1, f.conn.closes, "one scoped connection per job")
}

func TestRegenerate_LastRequestGoneDeletesEverything(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)
	req := f.seedApproved(t, "MW2400549", d, 18, 4)

	require.NoError(t, f.orch.Export(context.Background(), d))
	require.Len(t, f.conn.names(), 4)

	f.softDelete(t, req)
	require.NoError(t, f.orch.RegenerateOrCleanup(context.Background(), d))

	assert.Empty(t, f.conn.names(), "no data left in the period, so no artifacts either")
}

func TestRegenerate_RebuildsMonthlyWithoutTheDeletedDate(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	dA := dayOf(2025, time.February, 27)
	dB := dayOf(2025, time.March, 3)
	reqA := f.seedApproved(t, "MW2400549", dA, 18, 4)
	f.seedApproved(t, "MW2400123", dB, 17, 2)

	require.NoError(t, f.orch.Export(context.Background(), dA))
	require.NoError(t, f.orch.Export(context.Background(), dB))

	f.softDelete(t, reqA)
	require.NoError(t, f.orch.RegenerateOrCleanup(context.Background(), dA))

	names := f.conn.names()
	assert.NotContains(t, names, artifactPath(dA, "20250227OT.xlsx"))
	assert.NotContains(t, names, artifactPath(dA, "20250227OTSummary.xlsx"))
	assert.Contains(t, names, artifactPath(dB, "20250303OT.xlsx"))

	monthly := f.conn.get(artifactPath(dA, "~2025_02_26-2025_03_25OT.xlsx"))
	require.NotEmpty(t, monthly, "monthly workbook is rebuilt, not deleted")

	wb, err := excelize.OpenReader(bytes.NewReader(monthly))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Assembly")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus the one surviving row")
	assert.Equal(t, "MW2400123", rows[1][0])
}

func TestExport_EmptyDateDegradesToCleanup(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)

	// Stale artifacts from an earlier run.
	require.NoError(t, f.conn.MkdirAll(path.Join("OT", period.FolderName(d))))
	require.NoError(t, f.conn.Put(artifactPath(d, "20250227OT.xlsx"), []byte("stale")))
	require.NoError(t, f.conn.Put(artifactPath(d, "~2025_02_26-2025_03_25OT.xlsx"), []byte("stale")))

	require.NoError(t, f.orch.Export(context.Background(), d))
	assert.Empty(t, f.conn.names())
}

func TestExport_CancelledLastRequestRemovesDailyPair(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	dA := dayOf(2025, time.February, 27)
	dB := dayOf(2025, time.March, 3)
	reqA := f.seedApproved(t, "MW2400549", dA, 18, 4)
	f.seedApproved(t, "MW2400123", dB, 17, 2)

	require.NoError(t, f.orch.Export(context.Background(), dA))
	require.NoError(t, f.orch.Export(context.Background(), dB))

	// Cancelling the only request on the date schedules a plain export for
	// it; the run must notice the day is empty even though the period is not.
	require.NoError(t, f.db.Model(&models.OvertimeRequest{}).
		Where("id = ?", reqA.ID).
		Update("status", models.StatusCancelled).Error)
	require.NoError(t, f.orch.Export(context.Background(), dA))

	names := f.conn.names()
	assert.NotContains(t, names, artifactPath(dA, "20250227OT.xlsx"))
	assert.NotContains(t, names, artifactPath(dA, "20250227OTSummary.xlsx"))
	assert.Contains(t, names, artifactPath(dB, "20250303OT.xlsx"))

	monthly := f.conn.get(artifactPath(dA, "~2025_02_26-2025_03_25OT.xlsx"))
	require.NotEmpty(t, monthly)
	wb, err := excelize.OpenReader(bytes.NewReader(monthly))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Assembly")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "MW2400123", rows[1][0])
}

func TestCleanup_TolerateMissingArtifacts(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)

	require.NoError(t, f.orch.RegenerateOrCleanup(context.Background(), d))
	assert.Empty(t, f.conn.names())
}

func TestExport_KeepsAndDropsLocalCopies(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Options{ExcelLocalDir: dir})
	d := dayOf(2025, time.February, 27)
	req := f.seedApproved(t, "MW2400549", d, 18, 4)

	require.NoError(t, f.orch.Export(context.Background(), d))
	local := func(name string) string {
		return filepath.Join(dir, period.FolderName(d), name)
	}
	_, err := os.Stat(local("20250227OT.xlsx"))
	require.NoError(t, err)
	_, err = os.Stat(local("~2025_02_26-2025_03_25OTSummary.xlsx"))
	require.NoError(t, err)

	f.softDelete(t, req)
	require.NoError(t, f.orch.RegenerateOrCleanup(context.Background(), d))
	_, err = os.Stat(local("20250227OT.xlsx"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(local("~2025_02_26-2025_03_25OT.xlsx"))
	assert.True(t, os.IsNotExist(err))
}

func TestExport_DialFailureIsTransient(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)
	f.seedApproved(t, "MW2400549", d, 18, 4)
	f.dialer.failures = 1

	err := f.orch.Export(context.Background(), d)
	require.Error(t, err)
	assert.True(t, filer.Transient(err))
}

func TestExport_NoActiveSMBConfigIsFinal(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)
	f.seedApproved(t, "MW2400549", d, 18, 4)
	require.NoError(t, f.db.Model(&models.SMBConfiguration{}).
		Where("is_active = ?", true).Update("is_active", false).Error)

	err := f.orch.Export(context.Background(), d)
	require.ErrorIs(t, err, models.ErrNoActiveSMBConfig)
	assert.False(t, filer.Transient(err))
}

func TestFailureMarker_SetAndCleared(t *testing.T) {
	f := newFixture(t, Options{ExcelTempOnly: true})
	d := dayOf(2025, time.February, 27)
	req := f.seedApproved(t, "MW2400549", d, 18, 4)

	f.orch.recordFailure(job{kind: kindExport, date: d}, fmt.Errorf("connection refused"))
	var got models.OvertimeRequest
	require.NoError(t, f.db.First(&got, req.ID).Error)
	assert.Contains(t, got.LastExportError, "export_overtime failed after")
	assert.Contains(t, got.LastExportError, "connection refused")

	require.NoError(t, f.orch.Export(context.Background(), d))
	require.NoError(t, f.db.First(&got, req.ID).Error)
	assert.Empty(t, got.LastExportError)
}

func TestRetry_DelayGrowsLinearlyWithAttempt(t *testing.T) {
	base := 60 * time.Second
	assert.Equal(t, 60*time.Second, Retry{Attempt: 0, Base: base}.Delay())
	assert.Equal(t, 120*time.Second, Retry{Attempt: 1, Base: base}.Delay())
	assert.Equal(t, 180*time.Second, Retry{Attempt: 2, Base: base}.Delay())
}

// A burst of enqueues for one date while a job runs collapses into a single
// follow-up: at most two runs total.
func TestQueue_BurstCoalescesToTwoRuns(t *testing.T) {
	release := make(chan struct{})
	done := make(chan job, 32)

	q := newQueue(2, 3, time.Millisecond)
	q.retryable = func(error) bool { return false }
	q.run = func(j job) error {
		if j.attempt == 0 && len(done) == 0 {
			<-release
		}
		done <- j
		return nil
	}
	defer q.Stop()

	d := dayOf(2025, time.February, 27)
	q.enqueue(kindExport, d)
	for i := 0; i < 19; i++ {
		q.enqueue(kindExport, d)
	}
	close(release)

	var runs int
	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			runs++
		case <-timeout:
			t.Fatalf("queue never drained, saw %d runs", runs)
		}
		if runs == 2 {
			break
		}
	}

	select {
	case <-done:
		t.Fatal("more than two runs for a coalesced burst")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueue_RegenerateSubsumesExportWhenCoalescing(t *testing.T) {
	release := make(chan struct{})
	done := make(chan job, 8)

	q := newQueue(1, 3, time.Millisecond)
	q.retryable = func(error) bool { return false }
	first := true
	q.run = func(j job) error {
		if first {
			first = false
			<-release
		}
		done <- j
		return nil
	}
	defer q.Stop()

	d := dayOf(2025, time.February, 27)
	q.enqueue(kindExport, d)
	q.enqueue(kindExport, d)
	q.enqueue(kindRegenerate, d)
	q.enqueue(kindExport, d)
	close(release)

	j1 := <-done
	assert.Equal(t, kindExport, j1.kind)
	select {
	case j2 := <-done:
		assert.Equal(t, kindRegenerate, j2.kind, "regenerate wins over coalesced exports")
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up run never happened")
	}
}

func TestQueue_DifferentDatesRunIndependently(t *testing.T) {
	done := make(chan job, 8)
	q := newQueue(2, 3, time.Millisecond)
	q.retryable = func(error) bool { return false }
	q.run = func(j job) error {
		done <- j
		return nil
	}
	defer q.Stop()

	q.enqueue(kindExport, dayOf(2025, time.February, 27))
	q.enqueue(kindExport, dayOf(2025, time.February, 28))

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case j := <-done:
			seen[j.date.Format("2006-01-02")] = true
		case <-time.After(2 * time.Second):
			t.Fatal("jobs did not run")
		}
	}
	assert.Len(t, seen, 2)
}

func TestQueue_TransientErrorsRetryThenExhaust(t *testing.T) {
	var mu sync.Mutex
	var attempts []int
	exhausted := make(chan job, 1)

	q := newQueue(1, 3, time.Millisecond)
	q.retryable = filer.Transient
	q.run = func(j job) error {
		mu.Lock()
		attempts = append(attempts, j.attempt)
		mu.Unlock()
		return &filer.TransientError{Err: fmt.Errorf("connection reset")}
	}
	q.onExhausted = func(j job, err error) { exhausted <- j }
	defer q.Stop()

	q.enqueue(kindExport, dayOf(2025, time.February, 27))

	select {
	case j := <-exhausted:
		assert.Equal(t, 2, j.attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("retries never exhausted")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestQueue_FinalErrorDoesNotRetry(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	exhausted := make(chan job, 1)

	q := newQueue(1, 3, time.Millisecond)
	q.retryable = filer.Transient
	q.run = func(j job) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return fmt.Errorf("share not found")
	}
	q.onExhausted = func(j job, err error) { exhausted <- j }
	defer q.Stop()

	q.enqueue(kindExport, dayOf(2025, time.February, 27))

	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("job never finished")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}
