package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/jwalton/gchalk"
	"github.com/jwalton/go-supportscolor"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/QQcutePig/RIOimgDownload/internal/appdata"
	"github.com/QQcutePig/RIOimgDownload/internal/log"
	"github.com/QQcutePig/RIOimgDownload/pkg/download"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

const pollInterval = 500 * time.Millisecond

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [url]",
	Short: "Scan a page for media",
	Example: heredoc.Doc(`
		# Scan a gallery page and list the verified media
		riodl scan https://example.com/gallery

		# Deep scan, then download everything found
		riodl scan --ultra --download -o ./media https://example.com/gallery
	`),
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("requires a URL to scan")
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]

		ultra, err := cmd.Flags().GetBool("ultra")
		if err != nil {
			log.Fatal(err)
		}
		static, err := cmd.Flags().GetBool("static")
		if err != nil {
			log.Fatal(err)
		}
		loginProfile, err := cmd.Flags().GetBool("login-profile")
		if err != nil {
			log.Fatal(err)
		}
		debugBrowser, err := cmd.Flags().GetBool("debug-browser")
		if err != nil {
			log.Fatal(err)
		}
		blacklist, err := cmd.Flags().GetString("blacklist")
		if err != nil {
			log.Fatal(err)
		}
		minW, err := cmd.Flags().GetInt("min-w")
		if err != nil {
			log.Fatal(err)
		}
		minH, err := cmd.Flags().GetInt("min-h")
		if err != nil {
			log.Fatal(err)
		}
		doDownload, err := cmd.Flags().GetBool("download")
		if err != nil {
			log.Fatal(err)
		}
		outDir, err := cmd.Flags().GetString("out")
		if err != nil {
			log.Fatal(err)
		}
		dataDir, err := cmd.Flags().GetString("data-dir")
		if err != nil {
			log.Fatal(err)
		}

		paths, err := appdata.Resolve(dataDir)
		if err != nil {
			log.Fatalf("Unable to prepare data directory: %v", err)
		}

		scanner := scan.New(scan.Config{
			JobsDir:    paths.JobsDir,
			ProfileDir: paths.ProfileDir,
		})

		opts := scan.Options{
			Ultra:           ultra,
			UseLoginProfile: loginProfile,
			DebugBrowser:    debugBrowser,
			StaticOnly:      static,
			MinWidth:        minW,
			MinHeight:       minH,
			WantImage:       true,
			WantVideo:       true,
		}
		if blacklist != "" {
			opts.Blacklist = strings.Split(blacklist, ",")
		}

		jobID, err := scanner.Start(url, opts)
		if err != nil {
			log.Fatal(err)
		}

		state := pollJob(scanner, jobID)
		if state.Status != meta.StatusDone {
			log.Fatalf("Scan %s: %s", state.Status, state.Message)
		}

		items, err := scanner.Items(jobID)
		if err != nil {
			log.Fatal(err)
		}

		for _, item := range items {
			line := item.URL
			if item.Width > 0 && item.Height > 0 {
				line = fmt.Sprintf("%s (%dx%d)", item.URL, item.Width, item.Height)
			}
			if supportscolor.Stdout().SupportsColor && item.Kind == meta.KindVideo {
				line = gchalk.Cyan(line)
			}
			fmt.Println(line)
		}
		fmt.Printf("%d items\n", len(items))

		if !doDownload || len(items) == 0 {
			return
		}
		if outDir == "" {
			outDir, err = os.Getwd()
			if err != nil {
				log.Fatalf("Unable to determine working directory: %v", err)
			}
		}

		urls := make([]string, len(items))
		for i, item := range items {
			urls[i] = item.URL
		}

		result := download.NewEngine().FetchAll(context.Background(), urls, outDir)
		fmt.Printf("Downloaded %d, failed %d\n", result.OK, result.Failed)
	},
}

// pollJob watches a job until it reaches a terminal state, redrawing
// a one-line progress message on TTYs.
func pollJob(scanner *scan.Scanner, jobID string) meta.JobState {
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))

	for {
		state, err := scanner.Job(jobID)
		if err != nil {
			log.Fatal(err)
		}

		if isTTY {
			width := 80
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				width = w
			}
			line := fmt.Sprintf("[%d/%d] %s", state.ProgressIndex, state.ProgressTotal, state.Message)
			fmt.Printf("\r%s", fitLine(line, width))
		}

		if state.Status.Terminal() {
			if isTTY {
				fmt.Println()
			}
			return state
		}
		time.Sleep(pollInterval)
	}
}

// fitLine trims the progress line to the terminal width on a rune
// boundary and pads the remainder so a shorter redraw overwrites the
// previous one.
func fitLine(line string, width int) string {
	runes := []rune(line)
	if len(runes) >= width {
		runes = runes[:width-1]
	}
	return string(runes) + strings.Repeat(" ", width-1-len(runes))
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("ultra", false, "Deep scan: more rounds, longer waits, aggressive extraction")
	scanCmd.Flags().Bool("static", false, "Skip the browser and parse the page HTML directly")
	scanCmd.Flags().Bool("login-profile", false, "Use the saved browser login profile")
	scanCmd.Flags().Bool("debug-browser", false, "Open a visible browser window instead of headless")
	scanCmd.Flags().Int("min-w", 0, "Drop images narrower than this")
	scanCmd.Flags().Int("min-h", 0, "Drop images shorter than this")
	scanCmd.Flags().String("blacklist", "", "Comma-separated URL keywords to skip (overrides the default list)")
	scanCmd.Flags().BoolP("download", "D", false, "Download the verified media when the scan finishes")
	scanCmd.Flags().StringP("out", "o", "", "Output directory to put files in")
}
