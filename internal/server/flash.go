package server

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
)

const flashCookieName = "minidrive_flash"

const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashError   = "error"
)

// Flash is a one-shot notification shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func init() {
	gob.Register(Flash{})
}

type flashes struct {
	store *sessions.CookieStore
}

func newFlashes(hashKey, blockKey []byte, basePath string, secure bool) *flashes {
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     basePath,
		MaxAge:   300,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &flashes{store: store}
}

func (f *flashes) add(w http.ResponseWriter, r *http.Request, kind, message string) {
	sess, _ := f.store.Get(r, flashCookieName)
	sess.AddFlash(Flash{Kind: kind, Message: message})
	_ = sess.Save(r, w)
}

// pop returns and clears pending notifications. A cookie that fails to
// decode is treated as empty.
func (f *flashes) pop(w http.ResponseWriter, r *http.Request) []Flash {
	sess, err := f.store.Get(r, flashCookieName)
	if err != nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = sess.Save(r, w)
	out := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if fl, ok := v.(Flash); ok {
			out = append(out, fl)
		}
	}
	return out
}
