// File: internal/automation/runner_test.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/coursepilot-dev/coursepilot/internal/config"
	"github.com/coursepilot-dev/coursepilot/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePage is a scripted Page implementation. Click outcomes are keyed by a
// substring of the target description; unmatched targets miss.
type fakePage struct {
	inCourse      bool
	clickable     map[string]bool
	scrollOK      bool
	choiceOK      bool
	screenshotErr error

	clicks      []string
	choiceCalls []int
	scrolls     int
	screenshots int
}

func newFakePage() *fakePage {
	return &fakePage{clickable: map[string]bool{}, scrollOK: true, choiceOK: true}
}

func (f *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakePage) WaitForLoad(ctx context.Context)                {}

func (f *fakePage) Screenshot(ctx context.Context, label string) ([]byte, error) {
	f.screenshots++
	if f.screenshotErr != nil {
		return nil, f.screenshotErr
	}
	return []byte("png"), nil
}

func (f *fakePage) FindAndActivate(ctx context.Context, description string) bool {
	f.clicks = append(f.clicks, description)
	for needle, ok := range f.clickable {
		if ok && strings.Contains(strings.ToLower(description), needle) {
			return true
		}
	}
	return false
}

func (f *fakePage) SelectChoice(ctx context.Context, index int) bool {
	f.choiceCalls = append(f.choiceCalls, index)
	return f.choiceOK
}

func (f *fakePage) Scroll(ctx context.Context) bool {
	f.scrolls++
	return f.scrollOK
}

func (f *fakePage) InCourse(ctx context.Context) bool { return f.inCourse }

func (f *fakePage) ClickByText(ctx context.Context, text string) bool {
	f.clicks = append(f.clicks, text)
	return f.clickable[text]
}

// fakeClient replays a scripted sequence of replies, repeating the last one
// when the script runs out.
type fakeClient struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeClient) AnalyzeScreen(ctx context.Context, image []byte, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx], nil
}

func testConfig(maxIterations int) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Vision.APIKey = "test"
	cfg.Run = config.RunConfig{
		StartURL:       "https://example.com",
		MaxIterations:  maxIterations,
		IterationDelay: time.Millisecond,
	}
	return cfg
}

func newTestRunner(t *testing.T, page Page, client vision.Client, maxIterations int) *Runner {
	t.Helper()
	r := NewRunner(page, client, testConfig(maxIterations), zaptest.NewLogger(t))
	// Shrink the fixed waits so idle-heavy scenarios run fast.
	r.waitInterval = time.Millisecond
	r.answerSettle = time.Millisecond
	return r
}

func TestRun_CompleteEndsLoop(t *testing.T) {
	page := newFakePage()
	client := &fakeClient{replies: []string{
		`{"action": "complete", "reasoning": "certificate shown"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, page.clicks)
}

func TestRun_ClickAdvancesAndResetsIdle(t *testing.T) {
	page := newFakePage()
	page.clickable["next page"] = true
	client := &fakeClient{replies: []string{
		`{"action": "click", "element": "Next Page button"}`,
		`{"action": "click", "element": "Next Page button"}`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []string{"Next Page button", "Next Page button"}, page.clicks)
}

func TestRun_StopsAtIterationBudget(t *testing.T) {
	page := newFakePage()
	page.scrollOK = true
	client := &fakeClient{replies: []string{`{"action": "scroll"}`}}
	runner := newTestRunner(t, page, client, 5)

	err := runner.Run(context.Background())

	// Hitting the budget is a soft stop, not an error.
	require.NoError(t, err)
	assert.Equal(t, 5, client.calls)
	assert.Equal(t, 5, page.scrolls)
}

func TestRun_VisionFailureAborts(t *testing.T) {
	page := newFakePage()
	client := &fakeClient{err: &vision.ProviderError{Provider: "ollama", Err: fmt.Errorf("connection refused")}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.Error(t, err)
	var provErr *vision.ProviderError
	assert.ErrorAs(t, err, &provErr)
	assert.Equal(t, 1, client.calls)
}

func TestRun_ScreenshotFailureDegradesToWait(t *testing.T) {
	page := newFakePage()
	page.screenshotErr = errors.New("tab crashed")
	client := &fakeClient{replies: []string{`{"action": "complete"}`}}
	runner := newTestRunner(t, page, client, 2)

	err := runner.Run(context.Background())

	// The model is never queried without a screenshot; the loop waits
	// through the budget instead of aborting.
	require.NoError(t, err)
	assert.Zero(t, client.calls)
	assert.Equal(t, 2, page.screenshots)
}

func TestRun_ContextCancellation(t *testing.T) {
	page := newFakePage()
	client := &fakeClient{replies: []string{`{"action": "scroll"}`}}
	runner := newTestRunner(t, page, client, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.calls)
}

// Three idle iterations trigger escalation: the runner tries the known
// buttons itself instead of trusting the model further.
func TestRun_IdleEscalationClicksKnownButtons(t *testing.T) {
	page := newFakePage()
	page.clickable["continue"] = true
	client := &fakeClient{replies: []string{
		`{"action": "wait"}`,
		`{"action": "wait"}`,
		`{"action": "wait"}`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	// Escalation walks the priority order until Continue hits.
	assert.Equal(t, []string{
		"Launch button", "Resume button", "Start button", "Next Page button", "Continue button",
	}, page.clicks)
}

// Escalation resets the idle counter even when no button was found, so it
// fires every threshold-many idle iterations rather than every iteration.
func TestRun_EscalationResetsIdleUnconditionally(t *testing.T) {
	page := newFakePage() // nothing clickable
	client := &fakeClient{replies: []string{`{"action": "wait"}`}}
	runner := newTestRunner(t, page, client, 7)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	// Iterations 3 and 6 escalate; each escalation tries all six buttons.
	assert.Len(t, page.clicks, 12)
}

// Inside a course, Launch and Resume re-enter the player and lose position,
// so escalation must not try them and click decisions naming them are refused.
func TestRun_InCourseSkipsCourseEntryButtons(t *testing.T) {
	page := newFakePage()
	page.inCourse = true
	client := &fakeClient{replies: []string{
		`{"action": "click", "element": "Resume button"}`,
		`{"action": "wait"}`,
		`{"action": "wait"}`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	// The refused Resume click counts as idle, so the third iteration
	// escalates with the in-course button set only.
	assert.Equal(t, []string{
		"Start button", "Next Page button", "Continue button", "Next Lesson button",
	}, page.clicks)
}

func TestRun_AnswerQuestionSelectsAndSubmits(t *testing.T) {
	page := newFakePage()
	page.clickable["submit"] = true
	client := &fakeClient{replies: []string{
		`{"action": "answer_question", "answer_index": 2, "is_test": true}`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{2}, page.choiceCalls)
	assert.Equal(t, []string{"Submit button"}, page.clicks)
}

func TestRun_AnswerMissCountsAsIdle(t *testing.T) {
	page := newFakePage()
	page.choiceOK = false
	client := &fakeClient{replies: []string{
		`{"action": "answer_question", "answer_index": 9}`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{9}, page.choiceCalls)
	// No submit attempt after a failed selection.
	assert.Empty(t, page.clicks)
}

// A read decision is treated as a hint that navigation exists: the runner
// tries the known buttons immediately instead of idling.
func TestRun_ReadTriesKnownButtons(t *testing.T) {
	page := newFakePage()
	page.inCourse = true
	page.clickable["next page"] = true
	client := &fakeClient{replies: []string{
		`{"action": "read", "reasoning": "content visible"}`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Start button", "Next Page button"}, page.clicks)
}

// Malformed model output must not abort the run; the decoder degrades it to
// a wait and the loop continues.
func TestRun_MalformedReplyDegradesToWait(t *testing.T) {
	page := newFakePage()
	client := &fakeClient{replies: []string{
		`utter nonsense, no JSON at all`,
		`{"action": "complete"}`,
	}}
	runner := newTestRunner(t, page, client, 10)

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

// The analysis prompt tells the model where it is; the location phrase must
// track the in-course flag.
func TestRun_PromptReflectsLocation(t *testing.T) {
	page := newFakePage()
	client := &fakeClient{replies: []string{`{"action": "complete"}`}}
	runner := newTestRunner(t, page, client, 10)

	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "course selection page")

	page.inCourse = true
	client2 := &fakeClient{replies: []string{`{"action": "complete"}`}}
	runner2 := newTestRunner(t, page, client2, 10)

	require.NoError(t, runner2.Run(context.Background()))
	require.Len(t, client2.prompts, 1)
	assert.Contains(t, client2.prompts[0], "inside the course player")
}

func TestKnownButtons(t *testing.T) {
	outside := knownButtons(false)
	require.Len(t, outside, 6)
	assert.Equal(t, "Launch button", outside[0])
	assert.Equal(t, "Resume button", outside[1])

	inside := knownButtons(true)
	require.Len(t, inside, 4)
	assert.NotContains(t, inside, "Launch button")
	assert.NotContains(t, inside, "Resume button")
}

func TestMentionsCourseEntry(t *testing.T) {
	assert.True(t, mentionsCourseEntry("Resume button"))
	assert.True(t, mentionsCourseEntry("the LAUNCH link"))
	assert.False(t, mentionsCourseEntry("Next Page button"))
	assert.False(t, mentionsCourseEntry(""))
}
