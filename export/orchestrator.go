// Package export glues rollups, the spreadsheet materializer, and the SMB
// publisher into asynchronous jobs. Handlers never run an export inline; they
// enqueue, and the worker pool does the rest.
package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"otportal/excel"
	"otportal/filer"
	"otportal/models"
	"otportal/period"
	"otportal/rollup"
)

type Options struct {
	Workers       int
	MaxAttempts   int
	RetryBase     time.Duration
	ExcelTempOnly bool
	ExcelLocalDir string
	OpTimeout     time.Duration
}

type Orchestrator struct {
	db   *gorm.DB
	agg  *rollup.Aggregator
	pub  *filer.Publisher
	opts Options

	queue *Queue
}

func NewOrchestrator(db *gorm.DB, agg *rollup.Aggregator, pub *filer.Publisher, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 60 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 60 * time.Second
	}

	o := &Orchestrator{db: db, agg: agg, pub: pub, opts: opts}
	o.queue = newQueue(opts.Workers, opts.MaxAttempts, opts.RetryBase)
	o.queue.run = o.runJob
	o.queue.retryable = filer.Transient
	o.queue.onExhausted = o.recordFailure
	return o
}

func (o *Orchestrator) Stop() {
	o.queue.Stop()
}

// EnqueueExport schedules artifact regeneration for the date. Implements
// workflow.Events.
func (o *Orchestrator) EnqueueExport(d time.Time) {
	o.queue.enqueue(kindExport, d)
}

// EnqueueRegenerate schedules regenerate-or-cleanup for the date. Implements
// workflow.Events.
func (o *Orchestrator) EnqueueRegenerate(d time.Time) {
	o.queue.enqueue(kindRegenerate, d)
}

func (o *Orchestrator) runJob(j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.OpTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case kindRegenerate:
		err = o.RegenerateOrCleanup(ctx, j.date)
	default:
		err = o.Export(ctx, j.date)
	}
	if err == nil {
		o.clearFailure(j.date)
	}
	return err
}

// Export rebuilds and publishes all four workbooks for the date. When the
// date turns out to hold no exportable rows it degrades to cleanup.
func (o *Orchestrator) Export(ctx context.Context, d time.Time) error {
	daily, err := o.agg.DailyByDepartment(d)
	if err != nil {
		return err
	}
	if len(daily) == 0 {
		// No exportable rows left on this date. cleanup drops the stale
		// daily pair and rebuilds the monthly pair from the remaining dates.
		return o.cleanup(ctx, d)
	}
	monthly, err := o.agg.PeriodByDepartment(d)
	if err != nil {
		return err
	}

	books, err := excel.BuildAll(daily, monthly, d)
	if err != nil {
		return err
	}

	payloads := make(map[string][]byte, len(books))
	for _, wb := range books {
		data, err := wb.Bytes()
		if err != nil {
			return err
		}
		payloads[wb.FileName] = data
	}

	if err := o.keepLocalCopies(d, payloads); err != nil {
		return err
	}

	return o.pub.WithConnection(ctx, func(c filer.Conn, cfg *models.SMBConfiguration) error {
		folder, err := filer.ResolvePeriodFolder(c, cfg, d)
		if err != nil {
			return err
		}
		for name, data := range payloads {
			if err := c.Put(path.Join(folder, name), data); err != nil {
				return fmt.Errorf("put %s: %w", name, err)
			}
		}
		log.Printf("[export] published %d artifacts for %s", len(payloads), d.Format("2006-01-02"))
		return nil
	})
}

// RegenerateOrCleanup re-exports the date if exportable rows remain, and
// otherwise removes the date's artifacts from the filer.
func (o *Orchestrator) RegenerateOrCleanup(ctx context.Context, d time.Time) error {
	hasAny, err := o.agg.HasAny(d)
	if err != nil {
		return err
	}
	if hasAny {
		return o.Export(ctx, d)
	}
	return o.cleanup(ctx, d)
}

// cleanup deletes the daily pair and, when the rest of the period is empty
// too, the monthly pair. If other dates in the period still have data the
// monthly pair is rebuilt without this date.
func (o *Orchestrator) cleanup(ctx context.Context, d time.Time) error {
	periodHasData, err := o.agg.PeriodHasAny(d, true)
	if err != nil {
		return err
	}

	var monthlyPayloads map[string][]byte
	if periodHasData {
		monthly, err := o.agg.PeriodByDepartment(d)
		if err != nil {
			return err
		}
		books, err := excel.BuildAll(nil, monthly, d)
		if err != nil {
			return err
		}
		monthlyPayloads = make(map[string][]byte, len(books))
		for _, wb := range books {
			data, err := wb.Bytes()
			if err != nil {
				return err
			}
			monthlyPayloads[wb.FileName] = data
		}
		if err := o.keepLocalCopies(d, monthlyPayloads); err != nil {
			return err
		}
	}

	err = o.pub.WithConnection(ctx, func(c filer.Conn, cfg *models.SMBConfiguration) error {
		folder, err := filer.ResolvePeriodFolder(c, cfg, d)
		if err != nil {
			return err
		}
		if err := filer.DeleteQuiet(c, path.Join(folder, period.DailyFileName(d))); err != nil {
			return err
		}
		if err := filer.DeleteQuiet(c, path.Join(folder, period.DailySummaryFileName(d))); err != nil {
			return err
		}

		if periodHasData {
			for name, data := range monthlyPayloads {
				if err := c.Put(path.Join(folder, name), data); err != nil {
					return fmt.Errorf("put %s: %w", name, err)
				}
			}
			return nil
		}
		if err := filer.DeleteQuiet(c, path.Join(folder, period.MonthlyFileName(d))); err != nil {
			return err
		}
		return filer.DeleteQuiet(c, path.Join(folder, period.MonthlySummaryFileName(d)))
	})
	if err != nil {
		return err
	}

	names := []string{period.DailyFileName(d), period.DailySummaryFileName(d)}
	if !periodHasData {
		names = append(names, period.MonthlyFileName(d), period.MonthlySummaryFileName(d))
	}
	o.dropLocalCopies(d, names)
	log.Printf("[export] cleaned up artifacts for %s", d.Format("2006-01-02"))
	return nil
}

// keepLocalCopies persists workbook bytes beside the service unless the
// temp-only switch is on, in which case nothing is kept.
func (o *Orchestrator) keepLocalCopies(d time.Time, payloads map[string][]byte) error {
	if o.opts.ExcelTempOnly {
		return nil
	}
	dir := filepath.Join(o.opts.ExcelLocalDir, period.FolderName(d))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, data := range payloads {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) dropLocalCopies(d time.Time, names []string) {
	if o.opts.ExcelTempOnly {
		return
	}
	dir := filepath.Join(o.opts.ExcelLocalDir, period.FolderName(d))
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			log.Printf("[export] drop local copy %s: %v", name, err)
		}
	}
}

// recordFailure leaves a marker on the date's requests after retries are
// exhausted so operators can spot stale artifacts.
func (o *Orchestrator) recordFailure(j job, err error) {
	msg := fmt.Sprintf("%s failed after %d attempts: %v", j.kind, o.opts.MaxAttempts, err)
	if len(msg) > 500 {
		msg = msg[:500]
	}
	uerr := o.db.Model(&models.OvertimeRequest{}).
		Scopes(models.Alive).
		Where("request_date = ?", j.date).
		Update("last_export_error", msg).Error
	if uerr != nil {
		log.Printf("[export] record failure marker: %v", uerr)
	}
}

func (o *Orchestrator) clearFailure(d time.Time) {
	o.db.Model(&models.OvertimeRequest{}).
		Scopes(models.Alive).
		Where("request_date = ? AND last_export_error <> ''", d).
		Update("last_export_error", "")
}
