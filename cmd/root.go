// Package cmd contains code for the `riodl` CLI tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/QQcutePig/RIOimgDownload/internal/log"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "riodl",
	Short: "Scans web pages for media and downloads it",
	Long: heredoc.Doc(`
		riodl scans a web page with a headless browser, verifies the media
		it finds and builds thumbnails for review before downloading.

		Examples:

		  # Scan a gallery page and list the verified media
		  riodl scan https://example.com/gallery

		  # Run the web UI and API server
		  riodl serve
	`),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.riodl.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "d", false, "Use verbose output")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default is $HOME/.riodl)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			log.Fatal(err)
		}

		// Search config in home directory with name ".riodl" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".riodl")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
