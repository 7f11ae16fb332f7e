// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/coursepilot-dev/coursepilot/internal/automation"
	"github.com/coursepilot-dev/coursepilot/internal/browser"
	"github.com/coursepilot-dev/coursepilot/internal/config"
	"github.com/coursepilot-dev/coursepilot/internal/observability"
	"github.com/coursepilot-dev/coursepilot/internal/vision"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <start-url>",
		Short: "Starts an automation run against the given course URL",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line flags override
			// values from the config file and environment variables.
			if err := viper.BindPFlag("vision.provider", cmd.Flags().Lookup("provider")); err != nil {
				return err
			}
			if err := viper.BindPFlag("vision.model", cmd.Flags().Lookup("model")); err != nil {
				return err
			}
			if err := viper.BindPFlag("vision.endpoint", cmd.Flags().Lookup("endpoint")); err != nil {
				return err
			}
			if err := viper.BindPFlag("vision.api_key", cmd.Flags().Lookup("api-key")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.screenshot_dir", cmd.Flags().Lookup("screenshot-dir")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.debug", cmd.Flags().Lookup("debug"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			// Resolve the full config now that the flag bindings from PreRunE
			// are in place; validation aborts here, before any browser starts.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			cfg.Run.StartURL = args[0]
			cfg.Run.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
			cfg.Run.AutoLogin, _ = cmd.Flags().GetBool("auto-login")
			cfg.Run.IterationDelay, _ = cmd.Flags().GetDuration("iteration-delay")
			if err := cfg.Run.Validate(); err != nil {
				return err
			}

			runID := uuid.New().String()
			logger.Info("Starting automation run.",
				zap.String("run_id", runID),
				zap.String("start_url", cfg.Run.StartURL),
				zap.String("provider", string(cfg.Vision.Provider)),
				zap.String("model", cfg.Vision.Model),
				zap.Int("max_iterations", cfg.Run.MaxIterations),
			)

			client, err := vision.New(ctx, cfg.Vision, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize vision client: %w", err)
			}

			session, err := browser.NewSession(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer session.Close()

			if err := session.Navigate(ctx, cfg.Run.StartURL); err != nil {
				return err
			}

			if !cfg.Run.AutoLogin {
				if err := waitForManualLogin(ctx, logger); err != nil {
					return err
				}
				session.WaitForLoad(ctx)
			}

			runner := automation.NewRunner(session, client, cfg, logger)
			if err := runner.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal.", zap.String("run_id", runID))
					return fmt.Errorf("run aborted by user signal")
				}
				logger.Error("Run failed.", zap.Error(err), zap.String("run_id", runID))
				return err
			}

			logger.Info("Run finished.", zap.String("run_id", runID))
			return nil
		},
	}

	runCmd.Flags().String("provider", "", "Vision provider: 'gemini' or 'ollama'. (Overrides config/env)")
	runCmd.Flags().String("model", "", "Vision model name. (Overrides config/env)")
	runCmd.Flags().String("endpoint", "", "Ollama endpoint URL, e.g. http://localhost:11434. (Overrides config/env)")
	runCmd.Flags().String("api-key", "", "API key for the gemini provider. (Overrides config/env)")
	runCmd.Flags().Bool("headless", false, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().String("screenshot-dir", "", "Directory for screenshot artifacts. (Overrides config/env)")
	runCmd.Flags().Bool("debug", false, "Enable verbose browser debugging. (Overrides config/env)")
	runCmd.Flags().Int("max-iterations", 200, "Maximum loop iterations before the run stops.")
	runCmd.Flags().Duration("iteration-delay", time.Second, "Minimum delay between loop iterations.")
	runCmd.Flags().Bool("auto-login", false, "Skip the manual login pause after the first page load.")

	return runCmd
}

// waitForManualLogin blocks until the operator confirms they have logged in.
// Course sites normally sit behind CAC or SSO login that cannot (and should
// not) be automated, so the run pauses after the first navigation.
func waitForManualLogin(ctx context.Context, logger *zap.Logger) error {
	logger.Info("Waiting for manual login. Complete the login in the browser, then press Enter here.")
	fmt.Println("\nLog in to the site in the opened browser window.")
	fmt.Print("Press Enter when you are on the course page to continue... ")

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to read login confirmation: %w", err)
		}
		logger.Info("Manual login confirmed.")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
