package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/matthewsawatzky/minidrive/internal/config"
	"github.com/matthewsawatzky/minidrive/internal/server"
	"github.com/matthewsawatzky/minidrive/internal/util"
)

type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

type rootState struct {
	configPath string
	dataDir    string
	apiURL     string
	version    VersionInfo
}

type serveFlags struct {
	host     string
	port     int
	bind     string
	basePath string
	logLevel string
	https    bool
	cert     string
	key      string
	theme    string
	maxMB    int64
}

func NewRootCmd(v VersionInfo) *cobra.Command {
	state := &rootState{version: v}
	serve := &serveFlags{}

	cmd := &cobra.Command{
		Use:           "minidrive",
		Short:         "Browser and terminal client for a MiniDrive backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "config path (default: platform user config)")
	cmd.PersistentFlags().StringVar(&state.dataDir, "data-dir", "", "data directory for the local SQLite store")
	cmd.PersistentFlags().StringVar(&state.apiURL, "api", "", "backend base URL override")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, state, serve)
		},
	}
	addServeFlags(serveCmd, serve)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive first-run setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, state)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print config location and effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, cfg, err := loadConfig(state)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", cfgPath)
			fmt.Fprintf(out, "Data dir: %s\n", cfg.DataDir)
			if err := config.Validate(cfg); err != nil {
				fmt.Fprintf(out, "Validation: failed (%v)\n", err)
			} else {
				fmt.Fprintln(out, "Validation: ok")
			}
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = out.Write(b)
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "minidrive %s\ncommit: %s\nbuilt: %s\n", v.Version, v.Commit, v.Date)
		},
	}

	cmd.AddCommand(serveCmd, initCmd, configCmd, versionCmd)
	cmd.AddCommand(buildAccountCommands(state)...)
	cmd.AddCommand(buildFileCommands(state)...)
	cmd.AddCommand(buildShareCommands(state)...)
	cmd.AddCommand(buildAdminCommands(state), buildHistoryCommand(state), buildThemeCommands(state))
	return cmd
}

func addServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().StringVar(&f.host, "host", "", "advertised host override for printed URLs")
	cmd.Flags().IntVar(&f.port, "port", 0, "server port")
	cmd.Flags().StringVar(&f.bind, "bind", "", "bind address (default from config, typically 127.0.0.1)")
	cmd.Flags().StringVar(&f.basePath, "basepath", "", "base URL path for reverse proxy (e.g. /drive)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error")
	cmd.Flags().BoolVar(&f.https, "https", false, "enable HTTPS")
	cmd.Flags().StringVar(&f.cert, "cert", "", "TLS certificate path")
	cmd.Flags().StringVar(&f.key, "key", "", "TLS key path")
	cmd.Flags().StringVar(&f.theme, "theme", "", "theme name")
	cmd.Flags().Int64Var(&f.maxMB, "max-upload-mb", 0, "largest file the upload form accepts, in MB")
}

func loadConfig(state *rootState) (string, config.Config, error) {
	cfgPath := strings.TrimSpace(state.configPath)
	if cfgPath == "" {
		p, err := config.ConfigPathFromEnv()
		if err != nil {
			return "", config.Config{}, err
		}
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath, state.dataDir)
	if err != nil {
		return "", config.Config{}, err
	}
	if state.dataDir != "" {
		cfg.DataDir = state.dataDir
	}
	if state.apiURL != "" {
		cfg.APIBaseURL = config.NormalizeAPIBaseURL(state.apiURL)
	}
	return cfgPath, cfg, nil
}

func mergeServeFlags(cmd *cobra.Command, cfg config.Config, f *serveFlags) config.Config {
	if cmd.Flags().Changed("host") {
		cfg.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("bind") {
		cfg.Bind = f.bind
	}
	if cmd.Flags().Changed("basepath") {
		cfg.BasePath = config.NormalizeBasePath(f.basePath)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(f.logLevel))
	}
	if cmd.Flags().Changed("https") {
		cfg.HTTPS = f.https
	}
	if cmd.Flags().Changed("cert") {
		cfg.CertFile = f.cert
	}
	if cmd.Flags().Changed("key") {
		cfg.KeyFile = f.key
	}
	if cmd.Flags().Changed("theme") {
		cfg.Theme = strings.ToLower(strings.TrimSpace(f.theme))
	}
	if cmd.Flags().Changed("max-upload-mb") {
		cfg.MaxUploadSizeMB = f.maxMB
	}
	return cfg
}

func serveOptions(cfg config.Config, v VersionInfo) server.Options {
	timeout, ttl := cfg.Durations()
	return server.Options{
		APIBaseURL:        cfg.APIBaseURL,
		RegisterPath:      cfg.RegisterPath,
		AdminSource:       cfg.AdminSource,
		RequestTimeout:    timeout,
		DataDir:           cfg.DataDir,
		Bind:              cfg.Bind,
		Host:              cfg.Host,
		Port:              cfg.Port,
		BasePath:          cfg.BasePath,
		LogLevel:          cfg.LogLevel,
		HTTPS:             cfg.HTTPS,
		CertFile:          cfg.CertFile,
		KeyFile:           cfg.KeyFile,
		Theme:             cfg.Theme,
		ThemeOverrides:    cfg.ThemeOverrides,
		SessionTTL:        ttl,
		RevalidateSession: cfg.RevalidateSession,
		MaxUploadBytes:    cfg.MaxUploadSizeMB << 20,
		Version:           v.Version,
	}
}

func runServe(cmd *cobra.Command, state *rootState, flags *serveFlags) error {
	cfgPath, cfg, err := loadConfig(state)
	if err != nil {
		return err
	}
	cfg = mergeServeFlags(cmd, cfg, flags)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	opts := serveOptions(cfg, state.version)

	out := cmd.OutOrStdout()
	host := opts.Bind
	if opts.Host != "" {
		host = opts.Host
	}
	urls := util.DiscoverURLs(host, opts.Port, opts.HTTPS, opts.BasePath)
	fmt.Fprintf(out, "Backend: %s\n", cfg.APIBaseURL)
	fmt.Fprintf(out, "Config:  %s\n", cfgPath)
	fmt.Fprintf(out, "Data:    %s\n", cfg.DataDir)
	fmt.Fprintln(out, "URLs:")
	for _, u := range urls {
		fmt.Fprintf(out, "  - %s\n", u)
	}
	if qr := lanURL(urls); qr != "" {
		fmt.Fprintln(out, "QR (scan from phone on same LAN):")
		if err := util.WriteTerminalQR(out, qr); err != nil {
			fmt.Fprintf(out, "  (qr unavailable: %v)\n", err)
		}
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop.")
	return server.Run(cmd.Context(), opts)
}

// lanURL picks the first URL reachable from another device, falling back to
// the first one listed.
func lanURL(urls []string) string {
	for _, u := range urls {
		if !strings.Contains(u, "://127.0.0.1") && !strings.Contains(u, "://localhost") {
			return u
		}
	}
	if len(urls) > 0 {
		return urls[0]
	}
	return ""
}

func runInit(cmd *cobra.Command, state *rootState) error {
	cfgPath, cfg, err := loadConfig(state)
	if err != nil {
		return err
	}

	p := newPrompter(cmd)
	out := p.out
	fmt.Fprintln(out, "minidrive first-run setup")
	cfg.APIBaseURL = config.NormalizeAPIBaseURL(p.askWithDefault("Backend URL", cfg.APIBaseURL))
	cfg.RegisterPath = p.askWithDefault("Signup endpoint ("+config.RegisterPath+" or "+config.SignupPath+")", cfg.RegisterPath)
	cfg.AdminSource = strings.ToLower(p.askWithDefault("Admin data source (all-data/all-files/files-admin)", cfg.AdminSource))
	cfg.DataDir = p.askWithDefault("Data directory", cfg.DataDir)
	cfg.Bind = p.askWithDefault("Bind address", cfg.Bind)
	cfg.Port = p.askIntWithDefault("Port", cfg.Port)
	cfg.BasePath = config.NormalizeBasePath(p.askWithDefault("Base path", cfg.BasePath))
	cfg.Theme = strings.ToLower(p.askWithDefault("Theme", cfg.Theme))
	cfg.MaxUploadSizeMB = int64(p.askIntWithDefault("Max upload size MB", int(cfg.MaxUploadSizeMB)))
	cfg.RevalidateSession = p.askBoolWithDefault("Re-check the session with the backend on every page", cfg.RevalidateSession)

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Config saved to %s\n", cfgPath)
	fmt.Fprintln(out, "Run `minidrive serve` to start the browser client or `minidrive login` to use the terminal.")
	return nil
}

// prompter reads answers from the command's input. Passwords are read
// without echo when that input is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter(cmd *cobra.Command) *prompter {
	p := &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout(), fd: -1}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

func (p *prompter) line() string {
	text, _ := p.in.ReadString('\n')
	return strings.TrimSpace(text)
}

func (p *prompter) ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	return p.line()
}

func (p *prompter) askWithDefault(label, def string) string {
	fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	if text := p.line(); text != "" {
		return text
	}
	return def
}

func (p *prompter) askIntWithDefault(label string, def int) int {
	for i := 0; ; i++ {
		value := p.askWithDefault(label, strconv.Itoa(def))
		n, err := strconv.Atoi(value)
		if err == nil && n > 0 {
			return n
		}
		if i >= 2 {
			return def
		}
		fmt.Fprintln(p.out, "Please enter a positive integer.")
	}
}

func (p *prompter) askBoolWithDefault(label string, def bool) bool {
	defaultStr := "n"
	if def {
		defaultStr = "y"
	}
	for i := 0; ; i++ {
		if v, ok := parseYesNo(p.askWithDefault(label+" (y/n)", defaultStr)); ok {
			return v
		}
		if i >= 2 {
			return def
		}
		fmt.Fprintln(p.out, "Enter y or n.")
	}
}

// confirm asks a destructive-action question. Anything but an explicit yes,
// including end of input, declines.
func (p *prompter) confirm(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	v, ok := parseYesNo(p.line())
	return ok && v
}

func (p *prompter) password(prompt string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", prompt)
	if p.fd >= 0 {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		return string(b), err
	}
	text, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(text, "\r\n"), nil
}

func (p *prompter) passwordTwice(label string) (string, error) {
	first, err := p.password(label)
	if err != nil {
		return "", err
	}
	second, err := p.password(label + " (confirm)")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	if strings.TrimSpace(first) == "" {
		return "", errors.New("password cannot be empty")
	}
	return first, nil
}

func parseYesNo(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1":
		return true, true
	case "n", "no", "false", "0":
		return false, true
	}
	return false, false
}

// Execute runs the command tree until ctx is cancelled.
func Execute(ctx context.Context, v VersionInfo) error {
	return NewRootCmd(v).ExecuteContext(ctx)
}
