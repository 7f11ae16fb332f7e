// File: cmd/courses.go
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/coursepilot-dev/coursepilot/internal/automation"
	"github.com/coursepilot-dev/coursepilot/internal/browser"
	"github.com/coursepilot-dev/coursepilot/internal/config"
	"github.com/coursepilot-dev/coursepilot/internal/observability"
	"github.com/coursepilot-dev/coursepilot/internal/vision"
)

// newCoursesCmd creates the `courses` command: detect the courses visible on
// a selection page, optionally pick one, and hand off to the run loop.
func newCoursesCmd() *cobra.Command {
	coursesCmd := &cobra.Command{
		Use:   "courses <start-url>",
		Short: "Lists the courses on a selection page and optionally starts one",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("vision.provider", cmd.Flags().Lookup("provider")); err != nil {
				return err
			}
			if err := viper.BindPFlag("vision.model", cmd.Flags().Lookup("model")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			cfg.Run.StartURL = args[0]
			cfg.Run.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
			cfg.Run.AutoLogin, _ = cmd.Flags().GetBool("auto-login")
			cfg.Run.IterationDelay = time.Second
			if err := cfg.Run.Validate(); err != nil {
				return err
			}

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
			courses, err := runner.DetectCourses(ctx)
			if err != nil {
				return err
			}
			if len(courses) == 0 {
				fmt.Println("No courses detected on this page.")
				return nil
			}

			fmt.Println("\nDetected courses:")
			for i, c := range courses {
				line := c.Title
				if c.Code != "" {
					line = fmt.Sprintf("%s (%s)", c.Title, c.Code)
				}
				fmt.Printf("  [%d] %s\n", i, line)
			}

			choice := -1
			if cmd.Flags().Changed("select") {
				choice, _ = cmd.Flags().GetInt("select")
				if choice < 0 || choice >= len(courses) {
					return fmt.Errorf("course index %d is out of range (0-%d)", choice, len(courses)-1)
				}
			} else {
				fmt.Print("\nEnter a course number to start it, or press Enter to exit: ")
				choice, err = readSelection(len(courses))
				if err != nil {
					return err
				}
				if choice < 0 {
					return nil
				}
			}

			course := courses[choice]
			if !runner.SelectCourse(ctx, course) {
				return fmt.Errorf("could not open course %q", course.Title)
			}
			logger.Info("Course opened; starting automation loop.", zap.String("title", course.Title))
			return runner.Run(ctx)
		},
	}

	coursesCmd.Flags().String("provider", "", "Vision provider: 'gemini' or 'ollama'. (Overrides config/env)")
	coursesCmd.Flags().String("model", "", "Vision model name. (Overrides config/env)")
	coursesCmd.Flags().Bool("headless", false, "Run the browser headless. (Overrides config/env)")
	coursesCmd.Flags().Int("max-iterations", 200, "Maximum loop iterations once a course is started.")
	coursesCmd.Flags().Int("select", 0, "Start the course at this index without prompting.")
	coursesCmd.Flags().Bool("auto-login", false, "Skip the manual login pause after the first page load.")

	return coursesCmd
}

// readSelection parses a course index from stdin. An empty line means exit,
// reported as -1.
func readSelection(count int) (int, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return -1, fmt.Errorf("failed to read selection: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return -1, nil
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 0 || idx >= count {
		return -1, fmt.Errorf("invalid selection %q (expected 0-%d)", line, count-1)
	}
	return idx, nil
}

func init() {
	rootCmd.AddCommand(newCoursesCmd())
}
