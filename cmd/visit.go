// -- cmd/visit.go --
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridpilot/gridpilot/internal/driver"
	"github.com/gridpilot/gridpilot/internal/observability"
	"github.com/gridpilot/gridpilot/internal/wire"
)

var (
	visitScreenshot string
	visitWaitTitle  bool
	visitWaitTotal  time.Duration
)

// visitCmd opens a URL in a fresh remote session, optionally waits for
// the page title to appear, and persists a screenshot.
var visitCmd = &cobra.Command{
	Use:   "visit <url>",
	Short: "Open a URL in a remote browser session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		target := args[0]

		client := wire.NewClient(appCfg.Hub, logger)
		drv := driver.New(client, appCfg.Driver, logger)

		ctx := cmd.Context()
		if err := drv.Start(ctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		defer func() {
			if err := drv.Quit(context.Background()); err != nil {
				logger.Warn("Failed to release session.", zap.Error(err))
			}
		}()

		if err := drv.Navigate(ctx, target); err != nil {
			return fmt.Errorf("open %s: %w", target, err)
		}

		if visitWaitTitle {
			title, err := drv.WaitUntil(ctx, func(ctx context.Context) (any, error) {
				t, err := drv.Title(ctx)
				if err != nil {
					return nil, err
				}
				if t == "" {
					return nil, fmt.Errorf("title not yet set")
				}
				return t, nil
			}, visitWaitTotal, 0)
			if err != nil {
				return fmt.Errorf("wait for page title: %w", err)
			}
			logger.Info("Page ready.", zap.Any("title", title))
		}

		if visitScreenshot != "" {
			path := visitScreenshot
			if !filepath.IsAbs(path) {
				path = filepath.Join(appCfg.Driver.ScreenshotDir, path)
			}
			if err := drv.SaveScreenshot(ctx, path); err != nil {
				return fmt.Errorf("save screenshot: %w", err)
			}
			logger.Info("Screenshot saved.", zap.String("path", path))
		}

		url, err := drv.CurrentURL(ctx)
		if err != nil {
			return err
		}
		logger.Info("Visit complete.", zap.String("url", url))
		return nil
	},
}

func init() {
	visitCmd.Flags().StringVarP(&visitScreenshot, "screenshot", "s", "", "persist a screenshot to this file after the page settles")
	visitCmd.Flags().BoolVar(&visitWaitTitle, "wait-title", true, "wait until the page title is set before finishing")
	visitCmd.Flags().DurationVar(&visitWaitTotal, "wait-total", 0, "overall bound for the title wait (default from config)")
	rootCmd.AddCommand(visitCmd)
}
