package cmd

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/QQcutePig/RIOimgDownload/internal/appdata"
	"github.com/QQcutePig/RIOimgDownload/internal/config"
	"github.com/QQcutePig/RIOimgDownload/internal/log"
	"github.com/QQcutePig/RIOimgDownload/internal/server"
	"github.com/QQcutePig/RIOimgDownload/internal/tools"
	"github.com/QQcutePig/RIOimgDownload/pkg/download"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan API and web UI server",
	Example: heredoc.Doc(`
		# Serve the API and UI on the default address
		riodl serve

		# Serve on another port with a custom UI build
		riodl serve --listen 127.0.0.1:9000 --web-dir ./dist
	`),
	Run: func(cmd *cobra.Command, args []string) {
		// Local overrides such as RIODL_DEST_DIR may live in a .env file.
		_ = godotenv.Load()

		listen, err := cmd.Flags().GetString("listen")
		if err != nil {
			log.Fatal(err)
		}
		webDir, err := cmd.Flags().GetString("web-dir")
		if err != nil {
			log.Fatal(err)
		}
		dataDir, err := cmd.Flags().GetString("data-dir")
		if err != nil {
			log.Fatal(err)
		}
		if dataDir == "" {
			dataDir = viper.GetString("data_dir")
		}
		if listen == "" {
			listen = viper.GetString("listen")
		}
		if listen == "" {
			listen = "127.0.0.1:8787"
		}

		paths, err := appdata.Resolve(dataDir)
		if err != nil {
			log.Fatalf("Unable to prepare data directory: %v", err)
		}

		settings, err := config.Load("")
		if err != nil {
			log.Fatal(err)
		}

		scanner := scan.New(scan.Config{
			JobsDir:    paths.JobsDir,
			ProfileDir: paths.ProfileDir,
		})

		toolMgr := tools.NewManager(executableDir())
		engine := download.NewEngine()

		handler := server.NewHandler(scanner, engine, toolMgr, settings, paths)
		router := server.NewRouter(handler, webDir)

		log.Infof("Serving on http://%s/ui/ (data in %s)", listen, paths.DataDir)
		if err := http.ListenAndServe(listen, router); err != nil {
			log.Fatal(err)
		}
	},
}

// executableDir is where the external tool binaries are expected.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Address to listen on (default 127.0.0.1:8787)")
	serveCmd.Flags().String("web-dir", "", "Directory holding the web UI files")
}
