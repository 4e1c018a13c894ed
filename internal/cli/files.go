package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/util"
)

func buildFileCommands(state *rootState) []*cobra.Command {
	lsCmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"files"},
		Short:   "List your files",
		Args:    cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, _, err := e.authed()
			if err != nil {
				return err
			}
			files, err := client.MyFiles(ctxOf(cmd))
			if err != nil {
				return e.fail(err, api.OpMyFiles, "")
			}
			if len(files) == 0 {
				fmt.Fprintln(e.out, "No files uploaded yet.")
				return nil
			}
			w := e.table()
			fmt.Fprintln(w, "ID\tNAME\tUPLOADED")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Name, humanize.Time(f.CreatedAt))
			}
			return w.Flush()
		}),
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			f, name, size, err := openUpload(args[0], e.cfg.MaxUploadSizeMB<<20)
			if err != nil {
				return err
			}
			defer f.Close()
			kind := "application/octet-stream"
			if mt, err := mimetype.DetectReader(f); err == nil {
				kind = mt.String()
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Uploading %s (%s, %s)...\n", name, kind, humanize.Bytes(uint64(size)))
			if err := client.Upload(ctxOf(cmd), name, f); err != nil {
				return e.fail(err, api.OpUpload, "")
			}
			e.audit(sess, "upload", name, humanize.Bytes(uint64(size)))
			fmt.Fprintln(e.out, "File uploaded")
			return nil
		}),
	}

	var rmYes bool
	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete one of your files",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			if !rmYes && !newPrompter(cmd).confirm("Are you sure you want to delete this file?") {
				fmt.Fprintln(e.out, "Cancelled.")
				return nil
			}
			if err := client.DeleteFile(ctxOf(cmd), args[0]); err != nil {
				return e.fail(err, api.OpDelete, "Delete failed")
			}
			e.audit(sess, "file.delete", args[0], "cli")
			fmt.Fprintln(e.out, "File deleted")
			return nil
		}),
	}
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "skip the confirmation prompt")

	editCmd := &cobra.Command{
		Use:   "edit <fileID> <path>",
		Short: "Replace the content of a file shared with you",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			f, name, _, err := openUpload(args[1], e.cfg.MaxUploadSizeMB<<20)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := client.EditFile(ctxOf(cmd), args[0], name, f); err != nil {
				return e.fail(err, api.OpEdit, "")
			}
			e.audit(sess, "file.edit", name, args[0])
			fmt.Fprintln(e.out, "File updated successfully")
			return nil
		}),
	}

	var showQR bool
	linkCmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Print the download URL of a file",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, _, err := e.authed()
			if err != nil {
				return err
			}
			ctx := ctxOf(cmd)
			files, err := client.MyFiles(ctx)
			if err != nil {
				return e.fail(err, api.OpMyFiles, "")
			}
			f, ok := findFile(files, args[0])
			if !ok {
				shares, err := client.SharedWithMe(ctx)
				if err != nil {
					return e.fail(err, api.OpSharedWithMe, "")
				}
				for _, s := range shares {
					if s.File != nil && s.File.ID == args[0] {
						f, ok = *s.File, true
						break
					}
				}
			}
			if !ok {
				return fmt.Errorf("no file with id %q", args[0])
			}
			link := resolveFileURL(e.cfg.APIBaseURL, f.URL)
			if link == "" {
				return fmt.Errorf("file %q has no URL", f.Name)
			}
			fmt.Fprintln(e.out, link)
			if showQR {
				return util.WriteTerminalQR(e.out, link)
			}
			return nil
		}),
	}
	linkCmd.Flags().BoolVar(&showQR, "qr", false, "also print a terminal QR code")

	return []*cobra.Command{lsCmd, uploadCmd, rmCmd, editCmd, linkCmd}
}

// openUpload opens a regular file no larger than limit and returns it with
// the name it will be sent under.
func openUpload(path string, limit int64) (*os.File, string, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", 0, err
	}
	if !info.Mode().IsRegular() {
		return nil, "", 0, fmt.Errorf("%s is not a regular file", path)
	}
	if limit > 0 && info.Size() > limit {
		return nil, "", 0, fmt.Errorf("file is larger than %s", humanize.Bytes(uint64(limit)))
	}
	name := util.CleanFileName(filepath.Base(path))
	if name == "" {
		return nil, "", 0, errors.New("file name is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", 0, err
	}
	return f, name, info.Size(), nil
}

func findFile(files []api.FileRecord, id string) (api.FileRecord, bool) {
	for _, f := range files {
		if f.ID == id {
			return f, true
		}
	}
	return api.FileRecord{}, false
}

// resolveFileURL makes a backend-relative file URL absolute.
func resolveFileURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return raw
	}
	return b.ResolveReference(ref).String()
}
