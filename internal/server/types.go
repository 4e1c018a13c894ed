package server

import (
	"html/template"
	"time"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/theme"
)

type Options struct {
	APIBaseURL        string
	RegisterPath      string
	AdminSource       string
	RequestTimeout    time.Duration
	DataDir           string
	Bind              string
	Host              string
	Port              int
	BasePath          string
	LogLevel          string
	HTTPS             bool
	CertFile          string
	KeyFile           string
	Theme             string
	ThemeOverrides    theme.Overrides
	SessionTTL        time.Duration
	RevalidateSession bool
	MaxUploadBytes    int64
	Version           string
}

// view is the data every page template receives. Page-specific fields are
// left zero by handlers that do not use them.
type view struct {
	Title     string
	Active    string
	BasePath  string
	CSRFToken string
	ThemeCSS  template.CSS
	Version   string
	User      *api.User
	IsAdmin   bool
	Notices   []Flash
	Error     string
	Form      map[string]string

	Files  []api.FileRecord
	Shares []api.ShareRecord
	Staged *stagedView

	Meta      api.AdminMeta
	Query     string
	Filtered  bool
	AdminRows []adminRow
	Shown     int

	Confirm *confirmView
}

// adminRow is one file on the admin page. Every file is rendered; rows the
// query does not match start hidden so the page script can widen the search.
type adminRow struct {
	api.FileRecord
	Hidden bool
}

type stagedView struct {
	Name        string
	Size        string
	ContentType string
	IsImage     bool
}

type confirmView struct {
	Message string
	Action  string
	Back    string
	Fields  map[string]string
}
