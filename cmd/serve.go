package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mindbridge/intake/internal/api"
	"github.com/mindbridge/intake/internal/orchestrator"
	"github.com/mindbridge/intake/internal/sessions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake REST API server",
	Long: `Start an HTTP server exposing intake sessions, habits, and the schedule
over a JSON API. By default it listens on port 8080. Use --port to change it.

Sessions talk to the dialogue backend configured under api.base_url; run
'intake backend' first if you are not pointing at an external one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := viper.GetInt("port")

		s, err := getStore()
		if err != nil {
			return err
		}

		cat, err := getCatalog()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		manager := sessions.NewManager(getBackendClient(), orchestrator.WithLogger(logger))
		server := api.NewServer(s, manager, cat)

		addr := fmt.Sprintf(":%d", port)
		logger.Info("intake api listening", "addr", addr, "backend", viper.GetString("api.base_url"))
		return http.ListenAndServe(addr, server.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
