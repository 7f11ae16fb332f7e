// File: internal/automation/runner.go

// Package automation drives the screenshot/decide/act loop that walks a
// course from its selection page to completion. Each iteration captures the
// screen, asks the vision backend for a decision, dispatches it through the
// browser, and tracks progress so the loop can escalate when it stalls.
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coursepilot-dev/coursepilot/internal/config"
	"github.com/coursepilot-dev/coursepilot/internal/decision"
	"github.com/coursepilot-dev/coursepilot/internal/vision"
)

const (
	// idleThreshold is the consecutive-idle count at which the runner stops
	// trusting the model and tries every known navigation button itself.
	idleThreshold = 3
	// waitInterval is the fixed sleep applied when the model asks to wait.
	waitInterval = 2 * time.Second
	// answerSettleDelay gives the page time to register a selected answer
	// before the submit control is pressed.
	answerSettleDelay = time.Second
)

// Page is the browser capability set the loop needs. *browser.Session
// satisfies it; tests substitute a scripted fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitForLoad(ctx context.Context)
	Screenshot(ctx context.Context, label string) ([]byte, error)
	FindAndActivate(ctx context.Context, description string) bool
	SelectChoice(ctx context.Context, index int) bool
	Scroll(ctx context.Context) bool
	InCourse(ctx context.Context) bool
	ClickByText(ctx context.Context, text string) bool
}

// Runner owns one automation run over one browser session.
type Runner struct {
	page    Page
	client  vision.Client
	cfg     *config.Config
	logger  *zap.Logger
	limiter *rate.Limiter

	// Overridable in tests; production runs use the package constants.
	waitInterval time.Duration
	answerSettle time.Duration
}

// NewRunner wires a runner from its collaborators. Iteration pacing comes
// from the configured delay; anything non-positive falls back to one second.
func NewRunner(page Page, client vision.Client, cfg *config.Config, logger *zap.Logger) *Runner {
	delay := cfg.Run.IterationDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Runner{
		page:         page,
		client:       client,
		cfg:          cfg,
		logger:       logger.Named("runner"),
		limiter:      rate.NewLimiter(rate.Every(delay), 1),
		waitInterval: waitInterval,
		answerSettle: answerSettleDelay,
	}
}

// Run executes the course-progress loop until the model reports completion,
// the iteration budget runs out, or the context is cancelled. Hitting the
// budget is a soft stop: the run ends with a warning, not an error. Only
// context cancellation and vision transport failures abort the run.
func (r *Runner) Run(ctx context.Context) error {
	st := &State{}

	for st.Iteration < r.cfg.Run.MaxIterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Iteration++
		st.InCourse = r.page.InCourse(ctx)

		log := r.logger.With(
			zap.Int("iteration", st.Iteration),
			zap.Bool("in_course", st.InCourse),
		)

		dec, err := r.analyze(ctx, st, log)
		if err != nil {
			return fmt.Errorf("vision analysis failed on iteration %d: %w", st.Iteration, err)
		}

		log.Info("Decision received.",
			zap.String("action", string(dec.Action)),
			zap.String("element", dec.Element),
			zap.String("reasoning", dec.Reasoning),
		)

		if r.dispatch(ctx, st, dec, log) {
			log.Info("Course reported complete.", zap.Int("total_iterations", st.Iteration))
			return nil
		}

		if st.ConsecutiveIdle >= idleThreshold {
			r.escalate(ctx, st, log)
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	r.logger.Warn("Reached the iteration budget without a completion decision.",
		zap.Int("max_iterations", r.cfg.Run.MaxIterations))
	return nil
}

// analyze captures the screen and asks the vision backend for a decision.
// A failed screenshot degrades to a wait decision so a transient browser
// hiccup does not abort the run; a failed vision query is returned to the
// caller and does.
func (r *Runner) analyze(ctx context.Context, st *State, log *zap.Logger) (decision.Decision, error) {
	img, err := r.page.Screenshot(ctx, "analysis")
	if err != nil {
		log.Warn("Screenshot failed; waiting before the next attempt.", zap.Error(err))
		return decision.Decision{Action: decision.ActionWait, Reasoning: "screenshot failed"}, nil
	}

	raw, err := r.client.AnalyzeScreen(ctx, img, buildAnalysisPrompt(st))
	if err != nil {
		return decision.Decision{}, err
	}
	return decision.Decode(raw), nil
}

// dispatch executes one decision and updates the idle counter. Returns true
// when the decision ends the run.
func (r *Runner) dispatch(ctx context.Context, st *State, dec decision.Decision, log *zap.Logger) bool {
	switch dec.Action {
	case decision.ActionComplete:
		return true

	case decision.ActionClick:
		r.handleClick(ctx, st, dec, log)

	case decision.ActionAnswerQuestion:
		r.handleAnswer(ctx, st, dec, log)

	case decision.ActionScroll:
		if r.page.Scroll(ctx) {
			st.ConsecutiveIdle = 0
		} else {
			st.ConsecutiveIdle++
		}

	case decision.ActionRead:
		// "read" is not actionable on its own; treat it as a hint that a
		// navigation control exists and try the known buttons directly.
		if r.tryKnownButtons(ctx, st.InCourse, log) {
			st.ConsecutiveIdle = 0
		} else {
			r.sleep(ctx, r.waitInterval)
			st.ConsecutiveIdle++
		}

	default: // decision.ActionWait and anything the decoder normalized to it
		r.sleep(ctx, r.waitInterval)
		st.ConsecutiveIdle++
	}
	return false
}

// handleClick resolves a click decision through the locator. Course-entry
// controls are refused while already inside a course: clicking Resume or
// Launch there relaunches the player and loses page position.
func (r *Runner) handleClick(ctx context.Context, st *State, dec decision.Decision, log *zap.Logger) {
	if st.InCourse && mentionsCourseEntry(dec.Element) {
		log.Warn("Refusing course-entry control while inside a course.", zap.String("target", dec.Element))
		st.ConsecutiveIdle++
		return
	}

	if r.page.FindAndActivate(ctx, dec.Element) {
		r.page.WaitForLoad(ctx)
		st.ConsecutiveIdle = 0
		return
	}
	log.Info("Click target not found; will reassess next iteration.", zap.String("target", dec.Element))
	st.ConsecutiveIdle++
}

// handleAnswer selects the model's chosen option and presses submit. The
// answer's correctness is the model's problem; this only performs the input.
func (r *Runner) handleAnswer(ctx context.Context, st *State, dec decision.Decision, log *zap.Logger) {
	log.Info("Answering question.",
		zap.Int("answer_index", dec.AnswerIndex),
		zap.Bool("is_test", dec.IsTest),
	)

	if !r.page.SelectChoice(ctx, dec.AnswerIndex) {
		log.Info("Answer option not found at index.", zap.Int("answer_index", dec.AnswerIndex))
		st.ConsecutiveIdle++
		return
	}

	r.sleep(ctx, r.answerSettle)
	if r.page.FindAndActivate(ctx, "Submit button") {
		r.page.WaitForLoad(ctx)
	}
	st.ConsecutiveIdle = 0
}

// escalate runs after three idle iterations: the model is stuck, so try
// every known navigation button in priority order. The idle counter resets
// whether or not a button was found; escalation is a periodic nudge, not a
// progress guarantee, and resetting keeps it from firing every iteration.
func (r *Runner) escalate(ctx context.Context, st *State, log *zap.Logger) {
	log.Warn("No progress for several iterations; trying known navigation buttons.",
		zap.Int("consecutive_idle", st.ConsecutiveIdle))

	if r.tryKnownButtons(ctx, st.InCourse, log) {
		log.Info("Escalation clicked a navigation button.")
	} else {
		log.Warn("Escalation found no clickable navigation button.")
	}
	st.ConsecutiveIdle = 0
}

// tryKnownButtons clicks the first findable navigation button in priority
// order. Course-entry buttons are only tried outside a course.
func (r *Runner) tryKnownButtons(ctx context.Context, inCourse bool, log *zap.Logger) bool {
	for _, target := range knownButtons(inCourse) {
		if ctx.Err() != nil {
			return false
		}
		if r.page.FindAndActivate(ctx, target) {
			log.Debug("Known button clicked.", zap.String("target", target))
			r.page.WaitForLoad(ctx)
			return true
		}
	}
	return false
}

// knownButtons is the escalation priority order. Launch and Resume enter a
// course, so they are offered only when still on the selection page.
func knownButtons(inCourse bool) []string {
	inside := []string{"Start button", "Next Page button", "Continue button", "Next Lesson button"}
	if inCourse {
		return inside
	}
	return append([]string{"Launch button", "Resume button"}, inside...)
}

// mentionsCourseEntry reports whether a target description names a control
// that (re)enters a course from the selection page.
func mentionsCourseEntry(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "resume") || strings.Contains(d, "launch")
}

// sleep pauses for the given duration or until the context ends.
func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
