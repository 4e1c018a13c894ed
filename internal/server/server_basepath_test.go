package server

import (
	"net/http"
	"testing"
)

func TestTemplateBasePath(t *testing.T) {
	tests := []struct {
		name     string
		basePath string
		want     string
	}{
		{name: "root", basePath: "/", want: ""},
		{name: "subpath", basePath: "/minidrive", want: "/minidrive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &App{opts: Options{BasePath: tt.basePath}}
			got := app.templateBasePath()
			if got != tt.want {
				t.Fatalf("templateBasePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeBase(t *testing.T) {
	for in, want := range map[string]string{
		"":        "/",
		"/":       "/",
		"drive":   "/drive",
		"/drive/": "/drive",
	} {
		if got := normalizeBase(in); got != want {
			t.Fatalf("normalizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoutesUnderBasePath(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.BasePath = "/drive" })
	b := h.browser(t)

	resp := b.get(t, "/drive/dashboard")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/drive/login" {
		t.Fatalf("expected redirect to /drive/login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp = b.get(t, "/drive/static/style.css")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("static under base path: %d", resp.StatusCode)
	}
	resp = b.get(t, "/dashboard")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("route outside base path should 404, got %d", resp.StatusCode)
	}
}
