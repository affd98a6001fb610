package cmd

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toolchest/favikit/internal/config"
	"github.com/toolchest/favikit/internal/logger"
)

var (
	version    = "0.1.0"
	verbose    bool
	quiet      bool
	configPath string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "favikit",
	Short: "Favicon generator: one logo in, every icon a site needs out",
	Long: `favikit turns a single source image (PNG, JPEG, WebP, GIF, BMP or SVG)
into the full favicon set: sized PNG icons, a multi-resolution favicon.ico,
a web app manifest, and a zip archive with everything in it.

Heavy sources can be processed by a favikit server (see "favikit serve").`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: favikit.yaml in ., $HOME/.favikit, /etc/favikit)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"favikit %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// setup loads configuration and builds the logger before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	l, err := logger.New(c.Logging, logger.Options{Verbose: verbose, Quiet: quiet, Console: cmd.ErrOrStderr()})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	cfg, log = c, l
	log.WithField("config", configPath).Debug("configuration loaded")
	return nil
}
