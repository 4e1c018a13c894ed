package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/catalog"
)

func buildAdminCommands(state *rootState) *cobra.Command {
	adminCmd := &cobra.Command{Use: "admin", Short: "Admin views of every file"}

	var search string
	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List every file, optionally filtered by name, owner name or owner email",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, _, err := e.admin()
			if err != nil {
				return err
			}
			overview, err := client.AdminOverview(ctxOf(cmd))
			if err != nil {
				return e.fail(err, api.OpAdmin, "")
			}
			files := catalog.FilterFiles(overview.Files, search)
			if len(files) == 0 {
				fmt.Fprintln(e.out, "No files found")
				return nil
			}
			w := e.table()
			fmt.Fprintln(w, "ID\tNAME\tOWNER\tSHARES\tUPLOADED")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", f.ID, f.Name, ownerLabel(f.Owner), f.ShareCount, humanize.Time(f.CreatedAt))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%d files, %d shares\n", len(files), catalog.TotalShares(files))
			return nil
		}),
	}
	lsCmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive filter")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show user, file and share totals",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, _, err := e.admin()
			if err != nil {
				return err
			}
			overview, err := client.AdminOverview(ctxOf(cmd))
			if err != nil {
				return e.fail(err, api.OpAdmin, "")
			}
			w := e.table()
			fmt.Fprintf(w, "Users:\t%s\n", humanize.Comma(int64(overview.Meta.TotalUsers)))
			fmt.Fprintf(w, "Files:\t%s\n", humanize.Comma(int64(overview.Meta.TotalFiles)))
			fmt.Fprintf(w, "Shares:\t%s\n", humanize.Comma(int64(overview.Meta.TotalShares)))
			return w.Flush()
		}),
	}

	var yes bool
	rmCmd := &cobra.Command{
		Use:   "rm <fileID>",
		Short: "Force-delete any file",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.admin()
			if err != nil {
				return err
			}
			if !yes && !newPrompter(cmd).confirm("Admin: Force delete this file?") {
				fmt.Fprintln(e.out, "Cancelled.")
				return nil
			}
			if err := client.DeleteFile(ctxOf(cmd), args[0]); err != nil {
				return e.fail(err, api.OpDelete, "Failed to delete file")
			}
			e.audit(sess, "admin.delete", args[0], "cli")
			fmt.Fprintln(e.out, "File removed by admin")
			return nil
		}),
	}
	rmCmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	adminCmd.AddCommand(lsCmd, statsCmd, rmCmd)
	return adminCmd
}
