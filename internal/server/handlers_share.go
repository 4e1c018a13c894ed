package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/matthewsawatzky/minidrive/internal/api"
)

// The edit and delete controls on this page only render when the share
// carries the matching flag. The backend is the one that refuses.

func (a *App) handleSharedWithMe(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	data := a.baseView(w, r, "Shared Files", "shared")
	shares, err := client.SharedWithMe(r.Context())
	if err != nil {
		if api.IsUnauthorized(err) {
			a.expireSession(w, r)
			return
		}
		a.logger.Warn("api request failed", "op", api.OpSharedWithMe, "status", statusOf(err), "error", err)
		data.Notices = append(data.Notices, Flash{Kind: FlashError, Message: api.Message(err, api.OpSharedWithMe)})
		shares = []api.ShareRecord{}
	}
	data.Shares = shares
	a.render(w, http.StatusOK, "shared.html", data)
}

func (a *App) handleSharedEdit(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	fileID := mux.Vars(r)["fileID"]
	release, ok := a.inflight.begin(a.currentSession(r).Token, "edit", fileID)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Update already in progress.")
		http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
		return
	}
	defer release()

	var sent string
	found, err := streamFilePart(r, a.opts.MaxUploadBytes+1<<20, w, func(name string, body io.Reader) error {
		sent = name
		return client.EditFile(r.Context(), fileID, name, body)
	})
	if !found {
		a.flashes.add(w, r, FlashError, "Choose a file to upload.")
		http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
		return
	}
	if err != nil {
		if a.apiFailure(w, r, err, api.OpEdit, api.Fallback(api.OpEdit)) {
			return
		}
		http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
		return
	}
	a.audit(r, "file.edit", targetName(sent, fileID), fileID)
	a.flashes.add(w, r, FlashSuccess, "File updated successfully")
	http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
}

func (a *App) handleSharedDelete(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	fileID := mux.Vars(r)["fileID"]
	name := strings.TrimSpace(r.PostFormValue("name"))
	if !a.confirmed(w, r, "This will delete the file for everyone. Continue?", a.route("/shared"), map[string]string{"name": name}) {
		return
	}
	release, ok := a.inflight.begin(a.currentSession(r).Token, "delete", fileID)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Delete already in progress.")
		http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
		return
	}
	defer release()

	if err := client.DeleteFile(r.Context(), fileID); err != nil {
		if a.apiFailure(w, r, err, api.OpDelete, "Delete failed") {
			return
		}
		http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
		return
	}
	a.audit(r, "shared.delete", targetName(name, fileID), "")
	a.flashes.add(w, r, FlashSuccess, "File deleted successfully")
	http.Redirect(w, r, a.route("/shared"), http.StatusSeeOther)
}

func (a *App) handleSharedByMe(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	data := a.baseView(w, r, "Shared By Me", "shared-by-me")
	shares, err := client.SharedByMe(r.Context())
	if err != nil {
		if api.IsUnauthorized(err) {
			a.expireSession(w, r)
			return
		}
		a.logger.Warn("api request failed", "op", api.OpSharedByMe, "status", statusOf(err), "error", err)
		data.Notices = append(data.Notices, Flash{Kind: FlashError, Message: api.Message(err, api.OpSharedByMe)})
		shares = []api.ShareRecord{}
	}
	data.Shares = shares
	a.render(w, http.StatusOK, "shared_by_me.html", data)
}

func (a *App) handleRevoke(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	id := mux.Vars(r)["id"]
	name := strings.TrimSpace(r.PostFormValue("name"))
	if !a.confirmed(w, r, "Stop sharing this file with this user?", a.route("/shared-by-me"), map[string]string{"name": name}) {
		return
	}
	release, ok := a.inflight.begin(a.currentSession(r).Token, "revoke", id)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Revoke already in progress.")
		http.Redirect(w, r, a.route("/shared-by-me"), http.StatusSeeOther)
		return
	}
	defer release()

	if err := client.RevokeShare(r.Context(), id); err != nil {
		if a.apiFailure(w, r, err, api.OpRevoke, api.Fallback(api.OpRevoke)) {
			return
		}
		http.Redirect(w, r, a.route("/shared-by-me"), http.StatusSeeOther)
		return
	}
	a.audit(r, "share.revoke", targetName(name, id), id)
	a.flashes.add(w, r, FlashSuccess, "Access revoked")
	http.Redirect(w, r, a.route("/shared-by-me"), http.StatusSeeOther)
}
