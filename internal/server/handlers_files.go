package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/matthewsawatzky/minidrive/internal/api"
)

type shareForm struct {
	Email string `validate:"required,email"`
}

func (a *App) handleDashboard(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	data := a.baseView(w, r, "My Drive", "dashboard")
	files, err := client.MyFiles(r.Context())
	if err != nil {
		if api.IsUnauthorized(err) {
			a.expireSession(w, r)
			return
		}
		a.logger.Warn("api request failed", "op", api.OpMyFiles, "status", statusOf(err), "error", err)
		data.Notices = append(data.Notices, Flash{Kind: FlashError, Message: api.Message(err, api.OpMyFiles)})
		files = []api.FileRecord{}
	}
	data.Files = files
	if f, ok := a.staging.get(a.currentSession(r).Token); ok {
		data.Staged = &stagedView{
			Name:        f.Name,
			Size:        humanize.Bytes(uint64(f.Size)),
			ContentType: f.ContentType,
			IsImage:     f.IsImage,
		}
	}
	a.render(w, http.StatusOK, "dashboard.html", data)
}

// nextFilePart advances mr to the part named "file". It returns io.EOF when
// the form has none.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// handleStageUpload keeps the selected file locally so the page can show a
// preview before anything is sent to the backend.
func (a *App) handleStageUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSession(w, r); !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		a.flashes.add(w, r, FlashError, "Choose a file to upload.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		a.flashes.add(w, r, FlashError, "Choose a file to upload.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	defer part.Close()

	sess := a.currentSession(r)
	f, err := a.staging.stage(sess.Token, part.FileName(), part, a.opts.MaxUploadBytes)
	if err != nil {
		msg := "Could not read the selected file."
		var tooLarge *http.MaxBytesError
		if errors.Is(err, errUploadTooLarge) || errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("File is larger than %s.", humanize.Bytes(uint64(a.opts.MaxUploadBytes)))
		}
		a.logger.Info("stage upload failed", "error", err)
		a.flashes.add(w, r, FlashError, msg)
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	a.logger.Debug("upload staged", "name", f.Name, "size", f.Size, "content_type", f.ContentType)
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

func (a *App) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	sess := a.currentSession(r)
	staged, ok := a.staging.get(sess.Token)
	if !ok {
		a.flashes.add(w, r, FlashError, "Choose a file to upload.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	release, ok := a.inflight.begin(sess.Token, "upload", staged.ID)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Upload already in progress.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	defer release()

	f, err := os.Open(staged.Path)
	if err != nil {
		a.staging.release(sess.Token, staged.ID)
		a.flashes.add(w, r, FlashError, "Upload failed")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	err = client.Upload(r.Context(), staged.Name, f)
	_ = f.Close()
	if err != nil {
		if a.apiFailure(w, r, err, api.OpUpload, api.Fallback(api.OpUpload)) {
			return
		}
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	a.staging.release(sess.Token, staged.ID)
	a.audit(r, "upload", staged.Name, humanize.Bytes(uint64(staged.Size)))
	a.flashes.add(w, r, FlashSuccess, "File uploaded")
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

func (a *App) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSession(w, r); !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	a.staging.release(a.currentSession(r).Token, "")
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

func (a *App) handleStagedPreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSession(w, r); !ok {
		return
	}
	staged, ok := a.staging.get(a.currentSession(r).Token)
	if !ok || !staged.IsImage {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(staged.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", staged.ContentType)
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, staged.Name, info.ModTime(), f)
}

func (a *App) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	id := mux.Vars(r)["id"]
	name := strings.TrimSpace(r.PostFormValue("name"))
	if !a.confirmed(w, r, "Are you sure you want to delete this file?", a.route("/dashboard"), map[string]string{"name": name}) {
		return
	}
	release, ok := a.inflight.begin(a.currentSession(r).Token, "delete", id)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Delete already in progress.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	defer release()

	if err := client.DeleteFile(r.Context(), id); err != nil {
		if a.apiFailure(w, r, err, api.OpDelete, "Delete failed") {
			return
		}
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	a.audit(r, "file.delete", targetName(name, id), "")
	a.flashes.add(w, r, FlashSuccess, "File deleted")
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

// handleShareFile grants another user access. View is always granted; the
// edit and delete boxes only add to it.
func (a *App) handleShareFile(w http.ResponseWriter, r *http.Request) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	if !a.verifyCSRF(w, r) {
		return
	}
	id := mux.Vars(r)["id"]
	name := strings.TrimSpace(r.PostFormValue("name"))
	form := shareForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if err := a.validate.Struct(form); err != nil {
		a.flashes.add(w, r, FlashError, "Enter the email address of the person to share with.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	release, ok := a.inflight.begin(a.currentSession(r).Token, "share", id)
	if !ok {
		a.flashes.add(w, r, FlashInfo, "Share already in progress.")
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	defer release()

	req := api.ShareRequest{
		FileID:        id,
		ReceiverEmail: form.Email,
		CanEdit:       checked(r.PostFormValue("can_edit")),
		CanDelete:     checked(r.PostFormValue("can_delete")),
	}
	if err := client.Share(r.Context(), req); err != nil {
		if a.apiFailure(w, r, err, api.OpShare, api.Fallback(api.OpShare)) {
			return
		}
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	a.audit(r, "share", targetName(name, id), fmt.Sprintf("to=%s edit=%t delete=%t", form.Email, req.CanEdit, req.CanDelete))
	a.flashes.add(w, r, FlashSuccess, "Shared "+targetName(name, "file"))
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

func targetName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// streamFilePart sends the "file" part of a multipart request to send
// without buffering it. ok is false when the form carried no file.
func streamFilePart(r *http.Request, limit int64, w http.ResponseWriter, send func(name string, body io.Reader) error) (ok bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	mr, err := r.MultipartReader()
	if err != nil {
		return false, nil
	}
	part, err := nextFilePart(mr)
	if err != nil {
		return false, nil
	}
	defer part.Close()
	return true, send(part.FileName(), part)
}
