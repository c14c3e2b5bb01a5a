package models

// ChartState classifies the freshness of a chart relative to the catalog.
type ChartState string

const (
	StateMissing  ChartState = "missing"
	StateUpToDate ChartState = "up_to_date"
	StateStale    ChartState = "stale"
)

// DownloadState tracks the lifecycle of a download operation for one chart.
// The empty string means no operation has been requested.
type DownloadState string

const (
	DownloadPending    DownloadState = "pending"
	DownloadInProgress DownloadState = "in_progress"
	DownloadSucceeded  DownloadState = "succeeded"
	DownloadFailed     DownloadState = "failed"
)

// ChartRecord is one entry of the remote catalog. Records are created fresh
// on every fetch and never persisted.
type ChartRecord struct {
	OACI          string
	City          string
	RemoteVersion string
	PDFURL        string
}

// LocalEntry is one row of the local index: a chart that has been downloaded
// to disk, with the version it was downloaded at.
type LocalEntry struct {
	OACI         string
	City         string
	LocalVersion string
	FilePath     string
}

// ChartStatus is the merged view of a chart as exposed to the caller.
type ChartStatus struct {
	OACI          string
	City          string
	LocalVersion  string // empty when not downloaded
	RemoteVersion string // empty when orphaned
	FilePath      string // empty when not downloaded
	State         ChartState
	Orphaned      bool // present locally but gone from the catalog
	Download      DownloadState
	DownloadError string
}
