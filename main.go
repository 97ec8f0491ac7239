// Package main provides the entry point for the readaloud CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/player"
	"github.com/dgnsrekt/readaloud/internal/readaloud"
	"github.com/dgnsrekt/readaloud/internal/synth"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	endpoint   string
	voiceID    string
	speechRate int
	cacheDir   string
	verbose    bool

	keyword = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"}).Render

	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "248"})
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true)

	rootCmd = &cobra.Command{
		Use:   "readaloud [FILE...]",
		Short: "Read text files aloud through a speech-synthesis endpoint",
		Long: paragraph(
			fmt.Sprintf("\nRead chapters aloud, %s. Segments are synthesized ahead of playback and cached on disk, so replaying a chapter costs no network calls.", keyword("paragraph by paragraph")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MinimumNArgs(1),
		RunE:             execute,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "synthesis endpoint URL")
	rootCmd.Flags().StringVarP(&voiceID, "voice", "v", "", "voice to read with (fuzzy-matched against the configured voices)")
	rootCmd.Flags().IntVarP(&speechRate, "rate", "r", 0, "speech rate (10 = normal speed)")
	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "audio cache directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	_ = viper.BindPFlag("endpoint_url", rootCmd.Flags().Lookup("endpoint"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speech_rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("cache_dir", rootCmd.Flags().Lookup("cache-dir"))

	defaults := readaloud.DefaultConfig()
	viper.SetDefault("text_language", defaults.TextLanguage)
	viper.SetDefault("speech_rate", defaults.SpeechRate)
	viper.SetDefault("max_cache_entries", defaults.MaxCacheEntries)
	viper.SetDefault("request_timeout", defaults.RequestTimeout.String())
	viper.SetDefault("poll_interval", defaults.PollInterval.String())

	rootCmd.AddCommand(voicesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}
	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}
	configFile = filepath.Join(dirs[0], "readaloud.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// loadConfig assembles the effective configuration: viper (file plus
// flags) first, then environment-variable overrides, then path
// expansion and voice resolution.
func loadConfig() (readaloud.Config, error) {
	cfg := readaloud.DefaultConfig()

	cfg.EndpointURL = viper.GetString("endpoint_url")
	if v := viper.GetString("text_language"); v != "" {
		cfg.TextLanguage = v
	}
	if v := viper.GetInt("speech_rate"); v > 0 {
		cfg.SpeechRate = v
	}
	cfg.Voice = viper.GetString("voice")
	cfg.CacheDir = viper.GetString("cache_dir")
	if v := viper.GetInt("max_cache_entries"); v > 0 {
		cfg.MaxCacheEntries = v
	}
	if v := viper.GetDuration("request_timeout"); v > 0 {
		cfg.RequestTimeout = v
	}
	if v := viper.GetDuration("poll_interval"); v > 0 {
		cfg.PollInterval = v
	}
	if err := viper.UnmarshalKey("voices", &cfg.Voices); err != nil {
		return cfg, fmt.Errorf("parse configured voices: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment overrides: %w", err)
	}

	if cfg.CacheDir == "" {
		scope := gap.NewScope(gap.User, "readaloud")
		dir, err := scope.CacheDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve cache directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(dir, "audio")
	} else {
		expanded, err := homedir.Expand(cfg.CacheDir)
		if err != nil {
			return cfg, fmt.Errorf("expand cache directory: %w", err)
		}
		cfg.CacheDir = expanded
	}

	if cfg.Voice != "" {
		cfg.Voice = resolveVoice(cfg.Voice, cfg.Voices)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveVoice maps user input to a configured voice ID, trying an
// exact ID match first and fuzzy-matching IDs and display names
// otherwise.
func resolveVoice(input string, voices []readaloud.Voice) string {
	targets := make([]string, 0, len(voices)*2)
	for _, v := range voices {
		if v.ID == input {
			return v.ID
		}
		targets = append(targets, v.ID, v.DisplayText())
	}
	matches := fuzzy.Find(input, targets)
	if len(matches) == 0 {
		return input
	}
	return voices[matches[0].Index/2].ID
}

func execute(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	chapters := make([]*readaloud.Chapter, 0, len(args))
	for _, arg := range args {
		ch, err := chapterFromFile(arg)
		if err != nil {
			return err
		}
		chapters = append(chapters, ch)
	}

	settings := readaloud.NewSettings(cfg)
	store, err := cache.NewStore(cfg.CacheDir, logger.With("component", "cache"))
	if err != nil {
		return err
	}
	client := synth.NewClient(settings.EndpointURL, cfg.RequestTimeout, 4, logger.With("component", "synth"))
	counters := &readaloud.Counters{}
	state := readaloud.NewSessionState()
	coord := readaloud.NewCoordinator(client, store, settings, counters, state, logger.With("component", "coordinator"))

	qp, err := player.New(logger.With("component", "player"))
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}

	session := &cliSession{
		logger:   logger,
		chapters: chapters,
		advance:  make(chan struct{}, 1),
		fatal:    make(chan error, 1),
	}
	driver := readaloud.NewDriver(readaloud.DriverConfig{
		Player:          qp,
		Coordinator:     coord,
		Store:           store,
		Counters:        counters,
		State:           state,
		Progress:        session,
		Logger:          logger.With("component", "driver"),
		PollInterval:    cfg.PollInterval,
		MaxCacheEntries: cfg.MaxCacheEntries,
	})
	driver.OnFatal(func(err error) {
		select {
		case session.fatal <- err:
		default:
		}
	})
	defer driver.Close()

	stopWatch := watchConfig(settings, driver, logger)
	defer stopWatch()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	return session.run(ctx, driver, settings, store)
}

// chapterFromFile loads one text file as a chapter: blank-line
// separated paragraphs become segments, pages hold roughly a
// screenful.
func chapterFromFile(path string) (*readaloud.Chapter, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chapter file: %w", err)
	}
	segments := splitSegments(string(b))
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s contains no readable text", path)
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &readaloud.Chapter{
		Title:       title,
		Segments:    segments,
		PageOffsets: pageOffsets(segments, pageRunes()),
	}, nil
}

// splitSegments breaks chapter text into paragraph segments on blank
// lines.
func splitSegments(text string) []string {
	var segments []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			segments = append(segments, block)
		}
	}
	return segments
}

// pageOffsets derives page boundaries: a new page starts where the
// running rune count crosses each pageSize multiple.
func pageOffsets(segments []string, pageSize int) []int {
	offsets := []int{0}
	pos := 0
	next := pageSize
	for _, seg := range segments {
		pos += len([]rune(seg))
		if pos >= next {
			offsets = append(offsets, pos)
			next = pos + pageSize
		}
	}
	return offsets
}

// pageRunes sizes a page from the terminal, falling back to a fixed
// amount when stdout is not a terminal.
func pageRunes() int {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		w, h, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil && w > 0 && h > 2 {
			return w * (h - 2)
		}
	}
	return 1600
}

// watchConfig applies config-file edits to the running session: voice
// changes take effect on the next segment, speech-rate changes also
// adjust the player speed immediately.
func watchConfig(settings *readaloud.Settings, driver *readaloud.Driver, logger *log.Logger) func() {
	used := viper.ConfigFileUsed()
	if used == "" {
		return func() {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watch unavailable", "err", err)
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(used)); err != nil {
		logger.Warn("config watch unavailable", "err", err)
		watcher.Close()
		return func() {}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != used || !event.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := viper.ReadInConfig(); err != nil {
					logger.Warn("config reload failed", "err", err)
					continue
				}
				cfg, err := loadConfig()
				if err != nil {
					logger.Warn("config reload rejected", "err", err)
					continue
				}
				if err := settings.Update(cfg); err != nil {
					logger.Warn("config reload rejected", "err", err)
					continue
				}
				driver.SetSpeechRate(cfg.SpeechRate)
				logger.Info("configuration reloaded", "voice", cfg.Voice, "rate", cfg.SpeechRate)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return func() { watcher.Close() }
}

// cliSession drives the chapter sequence and renders progress. It
// implements readaloud.ProgressTracker.
type cliSession struct {
	logger   *log.Logger
	chapters []*readaloud.Chapter
	current  int
	advance  chan struct{}
	fatal    chan error
}

// OnProgress implements readaloud.ProgressTracker.
func (s *cliSession) OnProgress(cur readaloud.Cursor, readLength int) {
	ch := s.chapters[s.current]
	fmt.Fprintf(os.Stderr, "\r%s",
		statusStyle.Render(fmt.Sprintf("%s · segment %d/%d", ch.Title, cur.Segment+1, len(ch.Segments))))
}

// OnPageTurn implements readaloud.ProgressTracker.
func (s *cliSession) OnPageTurn(page int) {
	s.logger.Debug("page turn", "page", page)
}

// OnChapterEnd implements readaloud.ProgressTracker.
func (s *cliSession) OnChapterEnd() {
	select {
	case s.advance <- struct{}{}:
	default:
	}
}

func (s *cliSession) run(ctx context.Context, driver *readaloud.Driver, settings *readaloud.Settings, store *cache.Store) error {
	keys, restoreKeys := rawKeys()
	defer restoreKeys()

	fmt.Fprintln(os.Stderr, statusStyle.Render("space pause/resume · +/- speed · n next chapter · q quit"))

	if err := driver.Play(ctx, s.chapters[0], readaloud.Cursor{}); err != nil {
		return err
	}

	paused := false
	rate := settings.SpeechRate()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.fatal:
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, errorStyle.Render("read aloud stopped: "+err.Error()))
			return err
		case <-s.advance:
			s.current++
			if s.current >= len(s.chapters) {
				fmt.Fprintln(os.Stderr)
				s.printCacheStats(store)
				return nil
			}
			if err := driver.Play(ctx, s.chapters[s.current], readaloud.Cursor{}); err != nil {
				return err
			}
		case key, ok := <-keys:
			if !ok {
				continue
			}
			switch key {
			case ' ':
				if paused {
					driver.Resume()
				} else {
					driver.Pause()
				}
				paused = !paused
			case 'q', 3: // ctrl-c in raw mode
				fmt.Fprintln(os.Stderr)
				s.printCacheStats(store)
				return nil
			case 'n':
				s.OnChapterEnd()
			case '+', '=':
				rate++
				settings.SetSpeechRate(rate)
				driver.SetSpeechRate(rate)
			case '-':
				if rate > 1 {
					rate--
					settings.SetSpeechRate(rate)
					driver.SetSpeechRate(rate)
				}
			}
		}
	}
}

func (s *cliSession) printCacheStats(store *cache.Store) {
	count, size, err := store.Stats()
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, statusStyle.Render(
		fmt.Sprintf("cache: %d entries, %s", count, humanize.Bytes(uint64(size)))))
}

// rawKeys puts stdin into raw mode and streams key presses. When
// stdin is not a terminal the channel stays silent.
func rawKeys() (<-chan byte, func()) {
	keys := make(chan byte)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return keys, func() {}
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return keys, func() {}
	}
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()
	return keys, func() {
		_ = term.Restore(fd, oldState)
	}
}
