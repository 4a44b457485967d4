package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "intake"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage intake configuration.

Running bare 'intake config' is the same as 'intake config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# intake configuration
# See: intake config show (for effective values and sources)

# SQLite database path (default: ~/.config/intake/intake.db)
# db_path: {{ .DBPath }}

# User id attached to sessions (default: anonymous)
# user_id: {{ .UserID }}

# Path to a YAML catalog overriding specialists and time slots
# catalog_path: ""

# Dialogue backend
api:
  # Base URL of the voice intake backend
  base_url: "{{ .APIBaseURL }}"

  # Request timeout
  timeout: "{{ .APITimeout }}"

# REST API server port (intake serve)
# port: {{ .Port }}

# Local dialogue backend (intake backend)
backend:
  port: {{ .BackendPort }}

# Anthropic settings for the local backend's replies
anthropic:
  api_key: ""
  model: "{{ .AnthropicModel }}"

# ElevenLabs settings for the local backend's TTS proxy
elevenlabs:
  api_key: ""
  voice_id: "{{ .ElevenLabsVoiceID }}"
`

type configTemplateData struct {
	DBPath            string
	UserID            string
	APIBaseURL        string
	APITimeout        string
	Port              int
	BackendPort       int
	AnthropicModel    string
	ElevenLabsVoiceID string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:            viper.GetString("db_path"),
		UserID:            viper.GetString("user_id"),
		APIBaseURL:        viper.GetString("api.base_url"),
		APITimeout:        viper.GetString("api.timeout"),
		Port:              viper.GetInt("port"),
		BackendPort:       viper.GetInt("backend.port"),
		AnthropicModel:    viper.GetString("anthropic.model"),
		ElevenLabsVoiceID: viper.GetString("elevenlabs.voice_id"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "INTAKE_DB_PATH"},
	{Key: "user_id", EnvVar: "INTAKE_USER_ID"},
	{Key: "catalog_path", EnvVar: "INTAKE_CATALOG_PATH"},
	{Key: "api.base_url", EnvVar: "INTAKE_API_BASE_URL"},
	{Key: "api.timeout", EnvVar: "INTAKE_API_TIMEOUT"},
	{Key: "port", EnvVar: "INTAKE_PORT"},
	{Key: "backend.port", EnvVar: "INTAKE_BACKEND_PORT"},
	{Key: "anthropic.api_key", EnvVar: "INTAKE_ANTHROPIC_API_KEY"},
	{Key: "anthropic.model", EnvVar: "INTAKE_ANTHROPIC_MODEL"},
	{Key: "elevenlabs.api_key", EnvVar: "INTAKE_ELEVENLABS_API_KEY"},
	{Key: "elevenlabs.voice_id", EnvVar: "INTAKE_ELEVENLABS_VOICE_ID"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Key == "anthropic.api_key" || k.Key == "elevenlabs.api_key" {
			if s, ok := val.(string); ok && s != "" {
				val = "(set)"
			}
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens nested YAML maps into dotted key paths.
func flattenKeys(prefix string, m map[string]any, out map[string]bool) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenKeys(key, nested, out)
			continue
		}
		out[key] = true
	}
}

// detectSource reports where a config value came from: env, file, or default.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return "(env " + envVar + ")"
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("no config file at %s (run 'intake config init' first)", cfgPath)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, cfgPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
