package sync

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/vac-tools/vacsync/internal/catalog"
	"github.com/vac-tools/vacsync/internal/config"
	"github.com/vac-tools/vacsync/internal/db"
	"github.com/vac-tools/vacsync/internal/status"
	"github.com/vac-tools/vacsync/pkg/models"
)

// Event reports progress of a single chart download.
type Event struct {
	OACI  string
	State models.DownloadState
	Err   error
}

// Syncer is the engine facade: it reconciles the remote catalog with the
// local index and coordinates concurrent chart downloads. The caller (CLI or
// UI loop) issues commands and reads snapshots; it never touches the index
// or the store directly.
type Syncer struct {
	cfg        config.Config
	db         *db.DB
	catalog    *catalog.Client
	store      *status.Store
	httpClient *http.Client
	onProgress func(Event)

	mu          sync.Mutex
	lastCatalog map[string]models.ChartRecord
	inflight    map[string]*operation
}

// NewSyncer creates a new engine instance. onProgress may be nil; when set
// it is invoked from worker goroutines and must be safe for concurrent use.
func NewSyncer(cfg config.Config, database *db.DB, client *catalog.Client, store *status.Store, onProgress func(Event)) (*Syncer, error) {
	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create download dir: %v", models.ErrStorage, err)
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Syncer{
		cfg:     cfg,
		db:      database,
		catalog: client,
		store:   store,
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
		},
		onProgress:  onProgress,
		inflight:    make(map[string]*operation),
		lastCatalog: nil,
	}, nil
}

// Refresh fetches the catalog, diffs it against the local index and replaces
// the status snapshot. On catalog failure the previous snapshot is kept
// untouched and the error returned; existing chart access is never blocked
// by a failed refresh.
func (s *Syncer) Refresh(ctx context.Context) error {
	records, err := s.catalog.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}

	entries, err := s.db.ListEntries()
	if err != nil {
		return fmt.Errorf("list local entries: %w", err)
	}

	statuses := Reconcile(records, entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCatalog = make(map[string]models.ChartRecord, len(records))
	for _, rec := range records {
		s.lastCatalog[rec.OACI] = rec
	}
	// Keep in-flight progress visible across the snapshot swap.
	for i := range statuses {
		if _, busy := s.inflight[statuses[i].OACI]; busy {
			statuses[i].Download = models.DownloadInProgress
		}
	}
	s.store.Replace(statuses)
	return nil
}

// RefreshLocal rebuilds the snapshot from the local index alone. Used when
// the catalog is unreachable: previously downloaded charts stay visible at
// their last known versions. No staleness can be computed without the
// remote side, and downloads stay refused until a catalog fetch succeeds.
func (s *Syncer) RefreshLocal() error {
	entries, err := s.db.ListEntries()
	if err != nil {
		return fmt.Errorf("list local entries: %w", err)
	}

	statuses := make([]models.ChartStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, models.ChartStatus{
			OACI:         e.OACI,
			City:         e.City,
			LocalVersion: e.LocalVersion,
			FilePath:     e.FilePath,
			State:        models.StateUpToDate,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range statuses {
		if _, busy := s.inflight[statuses[i].OACI]; busy {
			statuses[i].Download = models.DownloadInProgress
		}
	}
	s.store.Replace(statuses)
	return nil
}

// Snapshot returns a consistent point-in-time copy of every chart's status.
func (s *Syncer) Snapshot() []models.ChartStatus {
	return s.store.Snapshot()
}

// Delete removes a chart's file and its index entry. The file goes first: if
// its removal fails the index entry stays retrievable, so the visible state
// never claims a file is gone while it is still tracked. A chart with no
// local entry fails with models.ErrNotFound and leaves the store unmodified.
func (s *Syncer) Delete(oaci string) error {
	// Held across the removal: a submission racing the delete would
	// otherwise re-register the chart between the inflight check and the
	// file going away.
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[oaci]; busy {
		return fmt.Errorf("chart %s: download in progress", oaci)
	}

	entry, err := s.db.GetEntry(oaci)
	if err != nil {
		return err
	}

	if err := os.Remove(entry.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", models.ErrStorage, entry.FilePath, err)
	}
	if err := s.db.DeleteEntry(oaci); err != nil {
		return err
	}

	if _, listed := s.lastCatalog[oaci]; listed {
		s.store.Patch(oaci, func(st *models.ChartStatus) {
			st.LocalVersion = ""
			st.FilePath = ""
			st.State = models.StateMissing
			st.Download = ""
			st.DownloadError = ""
		})
	} else {
		// Orphaned entry: nothing remote remains to display.
		s.store.Remove(oaci)
	}
	return nil
}

func (s *Syncer) emit(ev Event) {
	if s.onProgress != nil {
		s.onProgress(ev)
	}
}
