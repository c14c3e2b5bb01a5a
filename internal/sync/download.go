package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vac-tools/vacsync/pkg/models"
	"golang.org/x/sync/errgroup"
)

// operation is a single in-flight chart download. Duplicate submissions for
// the same OACI code share one operation: err is set before done is closed
// and read only after.
type operation struct {
	oaci string
	done chan struct{}
	err  error

	// Status observed at submit time, restored when the operation is
	// cancelled before completion.
	prior   models.ChartStatus
	tracked bool
}

// Batch is the handle returned by Download. It aggregates the operations a
// submission started or joined, plus identifiers rejected up front.
type Batch struct {
	ops     []*operation
	results map[string]error
	cancel  context.CancelFunc
}

// Wait blocks until every chart in the batch has finished and returns the
// per-identifier outcome, nil meaning success.
func (b *Batch) Wait() map[string]error {
	for _, op := range b.ops {
		<-op.done
	}
	out := make(map[string]error, len(b.results)+len(b.ops))
	for oaci, err := range b.results {
		out[oaci] = err
	}
	for _, op := range b.ops {
		out[op.oaci] = op.err
	}
	return out
}

// Cancel aborts the batch best-effort: queued items are abandoned and
// in-flight transfers interrupted. A download that completes before the
// cancellation is observed stays completed.
func (b *Batch) Cancel() {
	b.cancel()
}

// Download submits a batch of chart downloads and returns immediately with a
// handle. Identifiers absent from the last fetched catalog fail individually
// with models.ErrUnknownChart without aborting the rest; each rejection is
// reported through onProgress as a failed event so progress consumers see
// every requested item. An identifier already downloading is coalesced into
// the existing operation, so at most one transfer per chart is ever in
// flight.
func (s *Syncer) Download(ctx context.Context, oacis []string) (*Batch, error) {
	ctx, cancel := context.WithCancel(ctx)
	batch := &Batch{results: make(map[string]error), cancel: cancel}

	type job struct {
		op  *operation
		rec models.ChartRecord
	}
	var jobs []job

	s.mu.Lock()
	if s.lastCatalog == nil {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("no catalog fetched yet, run a refresh first")
	}
	seen := make(map[string]bool, len(oacis))
	for _, oaci := range oacis {
		if seen[oaci] {
			continue
		}
		seen[oaci] = true

		if op, busy := s.inflight[oaci]; busy {
			batch.ops = append(batch.ops, op)
			continue
		}
		rec, listed := s.lastCatalog[oaci]
		if !listed {
			batch.results[oaci] = fmt.Errorf("%w: %s", models.ErrUnknownChart, oaci)
			continue
		}
		op := &operation{oaci: oaci, done: make(chan struct{})}
		op.prior, op.tracked = s.store.Get(oaci)
		s.inflight[oaci] = op
		batch.ops = append(batch.ops, op)
		jobs = append(jobs, job{op: op, rec: rec})
	}
	s.mu.Unlock()

	for oaci, rejErr := range batch.results {
		s.emit(Event{OACI: oaci, State: models.DownloadFailed, Err: rejErr})
	}
	for _, j := range jobs {
		s.store.Patch(j.rec.OACI, func(st *models.ChartStatus) {
			st.Download = models.DownloadPending
			st.DownloadError = ""
		})
		s.emit(Event{OACI: j.rec.OACI, State: models.DownloadPending})
	}

	// Scheduling runs off the caller's goroutine: Go blocks once the worker
	// limit is reached, and submission must stay non-blocking.
	go func() {
		g := new(errgroup.Group)
		g.SetLimit(s.cfg.Workers)
		for _, j := range jobs {
			j := j
			g.Go(func() error {
				j.op.err = s.downloadOne(ctx, j.rec, j.op)
				s.mu.Lock()
				delete(s.inflight, j.op.oaci)
				s.mu.Unlock()
				close(j.op.done)
				// Per-item failures never abort sibling downloads.
				return nil
			})
		}
		g.Wait()
		cancel()
	}()

	return batch, nil
}

func (s *Syncer) downloadOne(ctx context.Context, rec models.ChartRecord, op *operation) error {
	s.store.Patch(rec.OACI, func(st *models.ChartStatus) {
		st.Download = models.DownloadInProgress
		st.DownloadError = ""
	})
	s.emit(Event{OACI: rec.OACI, State: models.DownloadInProgress})

	finalPath := filepath.Join(s.cfg.DownloadDir, rec.OACI+".pdf")
	tmpPath, err := s.fetchToTemp(ctx, rec.PDFURL, finalPath)
	if err == nil {
		err = s.commitChart(rec, tmpPath, finalPath)
	}

	if err != nil {
		if ctx.Err() != nil && op.tracked {
			// Cancelled before completion: revert to the prior status.
			s.store.Patch(rec.OACI, func(st *models.ChartStatus) {
				*st = op.prior
			})
		} else {
			s.store.Patch(rec.OACI, func(st *models.ChartStatus) {
				st.Download = models.DownloadFailed
				st.DownloadError = err.Error()
			})
		}
		s.emit(Event{OACI: rec.OACI, State: models.DownloadFailed, Err: err})
		return err
	}

	s.store.Patch(rec.OACI, func(st *models.ChartStatus) {
		st.LocalVersion = rec.RemoteVersion
		st.FilePath = finalPath
		// A refresh may have observed a newer revision while this one was
		// in flight; classify against the remote version the store holds
		// now, not the one this transfer started from.
		if st.RemoteVersion == "" || st.RemoteVersion == rec.RemoteVersion {
			st.State = models.StateUpToDate
		} else {
			st.State = models.StateStale
		}
		st.Download = models.DownloadSucceeded
		st.DownloadError = ""
	})
	s.emit(Event{OACI: rec.OACI, State: models.DownloadSucceeded})
	return nil
}

// commitChart moves the fetched bytes into place and records them in the
// index. The file on disk must keep matching whichever entry the index
// holds: a prior revision is stashed aside before the rename and restored
// whenever the upsert fails, so failure is never partial at the file level.
func (s *Syncer) commitChart(rec models.ChartRecord, tmpPath, finalPath string) error {
	backup := ""
	if _, err := os.Stat(finalPath); err == nil {
		backup = finalPath + ".old"
		if err := os.Rename(finalPath, backup); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("%w: stash prior chart: %v", models.ErrStorage, err)
		}
	}

	restore := func() {
		os.Remove(finalPath)
		if backup != "" {
			os.Rename(backup, finalPath)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		restore()
		return fmt.Errorf("%w: move chart into place: %v", models.ErrStorage, err)
	}

	err := s.db.UpsertEntry(models.LocalEntry{
		OACI:         rec.OACI,
		City:         rec.City,
		LocalVersion: rec.RemoteVersion,
		FilePath:     finalPath,
	})
	if err != nil {
		restore()
		return err
	}

	if backup != "" {
		os.Remove(backup)
	}
	return nil
}

// fetchToTemp streams the chart to a temporary file in the download
// directory and returns its path. The caller owns the commit: a truncated
// transfer never becomes visible under the final name.
func (s *Syncer) fetchToTemp(ctx context.Context, chartURL, finalPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chartURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", models.ErrNetwork, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: chart fetch returned HTTP %d", models.ErrNetwork, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(s.cfg.DownloadDir, filepath.Base(finalPath)+".*.part")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", models.ErrStorage, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: stream chart: %v", models.ErrNetwork, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close temp file: %v", models.ErrStorage, err)
	}
	return tmpPath, nil
}
