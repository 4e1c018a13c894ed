package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matthewsawatzky/minidrive/internal/config"
	"github.com/matthewsawatzky/minidrive/internal/theme"
)

func buildHistoryCommand(state *rootState) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent actions taken from this machine",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			logs, err := e.store.ListAudit(limit)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Fprintln(e.out, "No activity recorded yet.")
				return nil
			}
			w := e.table()
			fmt.Fprintln(w, "WHEN\tACTOR\tACTION\tTARGET\tDETAILS")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(l.CreatedAt), l.Actor, l.Action, orDash(l.Target), orDash(l.Metadata))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries")
	return cmd
}

func buildThemeCommands(state *rootState) *cobra.Command {
	themeCmd := &cobra.Command{Use: "theme", Short: "Browser client themes"}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in themes",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriterFor(cmd)
			for _, t := range theme.List() {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
			}
			_ = w.Flush()
		},
	}

	var o theme.Overrides
	var reset bool
	setCmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Set the active theme and optional palette overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.TrimSpace(args[0]))
			cfgPath, cfg, err := loadConfig(state)
			if err != nil {
				return err
			}
			if reset {
				cfg.ThemeOverrides = theme.Overrides{}
			}
			cfg.ThemeOverrides = mergeOverrides(cmd, cfg.ThemeOverrides, o)
			if _, err := theme.Resolve(name, cfg.ThemeOverrides); err != nil {
				return err
			}
			cfg.Theme = name
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Theme set to %s. Restart `minidrive serve` to apply it.\n", name)
			return nil
		},
	}
	setCmd.Flags().StringVar(&o.Background, "background", "", "page background color")
	setCmd.Flags().StringVar(&o.Surface, "surface", "", "card and table background color")
	setCmd.Flags().StringVar(&o.Text, "text", "", "text color")
	setCmd.Flags().StringVar(&o.Muted, "muted", "", "secondary text color")
	setCmd.Flags().StringVar(&o.Accent, "accent", "", "accent color")
	setCmd.Flags().StringVar(&o.Danger, "danger", "", "destructive action color")
	setCmd.Flags().StringVar(&o.Border, "border", "", "border color")
	setCmd.Flags().StringVar(&o.Radius, "radius", "", "corner radius, e.g. 8px")
	setCmd.Flags().StringVar(&o.Font, "font", "", "CSS font-family list")
	setCmd.Flags().BoolVar(&reset, "reset", false, "drop saved overrides first")

	themeCmd.AddCommand(listCmd, setCmd)
	return themeCmd
}

// mergeOverrides applies only the override flags given on the command line.
func mergeOverrides(cmd *cobra.Command, cur, f theme.Overrides) theme.Overrides {
	set := func(flag string, dst *string, v string) {
		if cmd.Flags().Changed(flag) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("background", &cur.Background, f.Background)
	set("surface", &cur.Surface, f.Surface)
	set("text", &cur.Text, f.Text)
	set("muted", &cur.Muted, f.Muted)
	set("accent", &cur.Accent, f.Accent)
	set("danger", &cur.Danger, f.Danger)
	set("border", &cur.Border, f.Border)
	set("radius", &cur.Radius, f.Radius)
	set("font", &cur.Font, f.Font)
	return cur
}
