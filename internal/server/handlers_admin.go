package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/catalog"
)

func (a *App) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	data := a.baseView(w, r, "Admin", "admin")
	data.Query = strings.TrimSpace(r.URL.Query().Get("q"))

	overview, err := client.AdminOverview(r.Context())
	if err != nil {
		if api.IsUnauthorized(err) {
			a.expireSession(w, r)
			return
		}
		a.logger.Warn("api request failed", "op", api.OpAdmin, "status", statusOf(err), "error", err)
		data.Notices = append(data.Notices, Flash{Kind: FlashError, Message: api.Message(err, api.OpAdmin)})
		overview = api.AdminOverview{Files: []api.FileRecord{}}
	}
	data.Meta = overview.Meta
	data.AdminRows = make([]adminRow, 0, len(overview.Files))
	for _, f := range overview.Files {
		match := catalog.Matches(f, data.Query)
		if match {
			data.Shown++
		}
		data.AdminRows = append(data.AdminRows, adminRow{FileRecord: f, Hidden: !match})
	}
	data.Filtered = data.Query != ""
	a.render(w, http.StatusOK, "admin.html", data)
}

// handleAdminDelete force-deletes any file. It goes through the same delete
// endpoint as owners; the backend accepts it because of the admin role.
func (a *App) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	id := mux.Vars(r)["id"]
	name := strings.TrimSpace(r.PostFormValue("name"))
	q := strings.TrimSpace(r.PostFormValue("q"))
	back := a.route("/admin")
	if q != "" {
		back += "?q=" + url.QueryEscape(q)
	}
	if !a.confirmed(w, r, "Admin: Force delete this file?", back, map[string]string{"name": name, "q": q}) {
		return
	}
	release, ok := a.inflight.begin(a.currentSession(r).Token, "admin-delete", id)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Delete already in progress.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	defer release()

	if err := client.DeleteFile(r.Context(), id); err != nil {
		if a.apiFailure(w, r, err, api.OpDelete, "Failed to delete file") {
			return
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	a.audit(r, "admin.delete", targetName(name, id), id)
	a.flashes.add(w, r, FlashSuccess, "File removed by admin")
	http.Redirect(w, r, back, http.StatusSeeOther)
}
