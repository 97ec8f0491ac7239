package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/readaloud/internal/readaloud"
)

const defaultConfig = `# synthesis endpoint URL
endpoint_url: ""
# language tag sent with each request
text_language: "zh"
# speech rate, 10 = normal speed
speech_rate: 10
# selected voice ID
voice: ""
# audio cache directory (empty = platform cache dir)
cache_dir: ""
# how many cached audio files to keep
max_cache_entries: 30
# per-request timeout
request_timeout: "30s"

# configured voices
voices: []
#  - id: "voice-1"
#    name: "Aria"
#    role: "narration"
#    category: "Standard"
`

var (
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"}).Bold(true)
	voiceIDStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "248"})

	voicesCmd = &cobra.Command{
		Use:     "voices [FILTER]",
		Short:   "List the configured voices",
		Long:    paragraph(fmt.Sprintf("\n%s the voices from the config file. An optional filter fuzzy-matches against voice names and IDs; the selected voice is highlighted.", keyword("List"))),
		Example: paragraph("readaloud voices\nreadaloud voices aria"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				// Voice listing should work before an endpoint is set.
				cfg = readaloud.DefaultConfig()
				cfg.Voice = viper.GetString("voice")
				if uerr := viper.UnmarshalKey("voices", &cfg.Voices); uerr != nil {
					return err
				}
			}
			if len(cfg.Voices) == 0 {
				fmt.Println("No voices configured. Add them under 'voices:' in", viper.ConfigFileUsed())
				return nil
			}

			voices := cfg.Voices
			if len(args) == 1 {
				voices = filterVoices(voices, args[0])
				if len(voices) == 0 {
					fmt.Printf("No voices match %q.\n", args[0])
					return nil
				}
			}

			for _, v := range voices {
				line := fmt.Sprintf("%s %s", v.DisplayText(), voiceIDStyle.Render("("+v.UniqueKey()+")"))
				if v.ID == cfg.Voice {
					line = selectedStyle.Render("* " + line)
				} else {
					line = "  " + line
				}
				fmt.Println(line)
			}
			return nil
		},
	}
)

// filterVoices fuzzy-matches the filter against each voice's display
// text and ID, keeping match order.
func filterVoices(voices []readaloud.Voice, filter string) []readaloud.Voice {
	targets := make([]string, len(voices))
	for i, v := range voices {
		targets[i] = strings.ToLower(v.DisplayText() + " " + v.ID)
	}
	matches := fuzzy.Find(strings.ToLower(filter), targets)
	out := make([]readaloud.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
