package domain

import (
	"context"
	"time"
)

// FormDetails describes a blank form as advertised by the server's form list.
type FormDetails struct {
	FormID      string
	Name        string
	Version     string
	Hash        string
	DownloadURL string
	ManifestURL string
}

// FormListItem is one row of the form chooser.
type FormListItem struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	FormID  string `json:"form_id"`
	Version string `json:"version,omitempty"`
}

func NewFormListItem(key string, d FormDetails) FormListItem {
	label := "ID: " + d.FormID
	if d.Version != "" {
		label = "Version " + d.Version + " " + label
	}
	return FormListItem{
		Key:     key,
		Name:    d.Name,
		Label:   label,
		FormID:  d.FormID,
		Version: d.Version,
	}
}

// Progress reports content-download progress. Done counts files already
// finished, CurrentFile is the one in flight.
type Progress struct {
	CurrentFile string `json:"current_file"`
	Done        int    `json:"done"`
	Total       int    `json:"total"`
}

// ManifestError carries the server's own failure text for a form list
// request. It travels on the error channel, never inside the list.
type ManifestError struct {
	Message string
}

func (e *ManifestError) Error() string { return e.Message }

// ManifestFetcher retrieves the form list keyed by form id.
type ManifestFetcher interface {
	FetchManifest(ctx context.Context) (map[string]FormDetails, error)
}

// FormDownloader fetches the given forms and reports a per-form result
// message keyed by form id. Per-form failures are carried in the result,
// the returned error is reserved for cancellation.
type FormDownloader interface {
	DownloadForms(ctx context.Context, forms []FormDetails, progress func(Progress)) (map[string]string, error)
}

// Form is a downloaded blank form on disk.
type Form struct {
	FormID       string
	Version      string
	Name         string
	Hash         string
	FilePath     string
	DownloadedAt time.Time
}

type FormRepository interface {
	Upsert(ctx context.Context, form Form) error
	List(ctx context.Context) ([]Form, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

// Connectivity reports whether the form server is reachable right now.
type Connectivity interface {
	Available(ctx context.Context) bool
}
