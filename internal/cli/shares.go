package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/catalog"
)

type shareInput struct {
	Email string `validate:"required,email"`
}

func buildShareCommands(state *rootState) []*cobra.Command {
	var canEdit, canDelete bool
	shareCmd := &cobra.Command{
		Use:   "share <fileID> <email>",
		Short: "Share a file with another user (view is always granted)",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			in := shareInput{Email: strings.TrimSpace(args[1])}
			if err := validate.Struct(in); err != nil {
				return errors.New("enter the email address of the person to share with")
			}
			req := api.ShareRequest{FileID: args[0], ReceiverEmail: in.Email, CanEdit: canEdit, CanDelete: canDelete}
			if err := client.Share(ctxOf(cmd), req); err != nil {
				return e.fail(err, api.OpShare, "")
			}
			e.audit(sess, "share", args[0], fmt.Sprintf("to=%s edit=%t delete=%t", in.Email, canEdit, canDelete))
			fmt.Fprintf(e.out, "Shared with %s (%s)\n", in.Email, strings.Join(grantNames(canEdit, canDelete), ", "))
			return nil
		}),
	}
	shareCmd.Flags().BoolVar(&canEdit, "edit", false, "allow the receiver to replace the content")
	shareCmd.Flags().BoolVar(&canDelete, "delete", false, "allow the receiver to delete the file")

	sharedCmd := &cobra.Command{
		Use:   "shared",
		Short: "List files shared with you",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, _, err := e.authed()
			if err != nil {
				return err
			}
			shares, err := client.SharedWithMe(ctxOf(cmd))
			if err != nil {
				return e.fail(err, api.OpSharedWithMe, "")
			}
			if len(shares) == 0 {
				fmt.Fprintln(e.out, "No files have been shared with you.")
				return nil
			}
			w := e.table()
			fmt.Fprintln(w, "FILE ID\tNAME\tOWNER\tPERMISSIONS")
			for _, s := range shares {
				fileID := "-"
				if s.File != nil {
					fileID = s.File.ID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fileID, orDash(catalog.FileName(s)), ownerLabel(s.Owner), strings.Join(catalog.PermissionBadges(s), ","))
			}
			return w.Flush()
		}),
	}

	var sharedRmYes bool
	sharedRmCmd := &cobra.Command{
		Use:   "rm <fileID>",
		Short: "Delete a file shared with you (needs the delete grant)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			if !sharedRmYes && !newPrompter(cmd).confirm("This will delete the file for everyone. Continue?") {
				fmt.Fprintln(e.out, "Cancelled.")
				return nil
			}
			if err := client.DeleteFile(ctxOf(cmd), args[0]); err != nil {
				return e.fail(err, api.OpDelete, "Delete failed")
			}
			e.audit(sess, "shared.delete", args[0], "cli")
			fmt.Fprintln(e.out, "File deleted successfully")
			return nil
		}),
	}
	sharedRmCmd.Flags().BoolVarP(&sharedRmYes, "yes", "y", false, "skip the confirmation prompt")
	sharedCmd.AddCommand(sharedRmCmd)

	sharedByMeCmd := &cobra.Command{
		Use:   "shared-by-me",
		Short: "List shares you have granted",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, _, err := e.authed()
			if err != nil {
				return err
			}
			shares, err := client.SharedByMe(ctxOf(cmd))
			if err != nil {
				return e.fail(err, api.OpSharedByMe, "")
			}
			if len(shares) == 0 {
				fmt.Fprintln(e.out, "You haven't shared any files yet.")
				return nil
			}
			w := e.table()
			fmt.Fprintln(w, "SHARE ID\tFILE\tSHARED WITH\tPERMISSIONS")
			for _, s := range shares {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, orDash(catalog.FileName(s)), ownerLabel(s.Receiver), strings.Join(catalog.PermissionBadges(s), ","))
			}
			return w.Flush()
		}),
	}

	var revokeYes bool
	revokeCmd := &cobra.Command{
		Use:   "revoke <shareID>",
		Short: "Stop sharing a file with a user",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			if !revokeYes && !newPrompter(cmd).confirm("Stop sharing this file with this user?") {
				fmt.Fprintln(e.out, "Cancelled.")
				return nil
			}
			if err := client.RevokeShare(ctxOf(cmd), args[0]); err != nil {
				return e.fail(err, api.OpRevoke, "")
			}
			e.audit(sess, "share.revoke", args[0], "cli")
			fmt.Fprintln(e.out, "Access revoked")
			return nil
		}),
	}
	revokeCmd.Flags().BoolVarP(&revokeYes, "yes", "y", false, "skip the confirmation prompt")

	return []*cobra.Command{shareCmd, sharedCmd, sharedByMeCmd, revokeCmd}
}

func grantNames(canEdit, canDelete bool) []string {
	return catalog.PermissionBadges(api.ShareRecord{CanView: true, CanEdit: canEdit, CanDelete: canDelete})
}
