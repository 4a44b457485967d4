package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mindbridge/intake/internal/dialogue"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Start a local dialogue backend",
	Long: `Start a local HTTP backend implementing the voice intake contract:
POST /voice/intake, POST /voice/crisis, POST /voice/tts, and
DELETE /voice/session/{id}.

Replies come from the Anthropic API when anthropic.api_key is configured,
otherwise from built-in canned responses. TTS requires elevenlabs.api_key;
without it the /voice/tts route returns an error and playback falls back
to text only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := viper.GetInt("backend.port")

		var responder dialogue.Responder
		if key := viper.GetString("anthropic.api_key"); key != "" {
			responder = dialogue.NewClient(key, viper.GetString("anthropic.model"))
		} else {
			responder = dialogue.CannedResponder{}
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		server := dialogue.NewServer(dialogue.NewEngine(responder), dialogue.TTSConfig{
			APIKey:  viper.GetString("elevenlabs.api_key"),
			VoiceID: viper.GetString("elevenlabs.voice_id"),
		}, logger)

		addr := fmt.Sprintf(":%d", port)
		logger.Info("dialogue backend listening", "addr", addr,
			"llm", viper.GetString("anthropic.api_key") != "",
			"tts", viper.GetString("elevenlabs.api_key") != "")
		return http.ListenAndServe(addr, server.Router())
	},
}

func init() {
	rootCmd.AddCommand(backendCmd)

	backendCmd.Flags().IntP("backend-port", "p", 8000, "port to listen on")
	_ = viper.BindPFlag("backend.port", backendCmd.Flags().Lookup("backend-port"))
}
