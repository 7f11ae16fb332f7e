// File: internal/automation/courses.go
package automation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/coursepilot-dev/coursepilot/internal/decision"
)

// DetectCourses screenshots the current page and asks the vision backend
// whether it is a course selection page, returning the enumerated courses.
// An empty list with a nil error means the page is not a course list.
func (r *Runner) DetectCourses(ctx context.Context) ([]decision.Course, error) {
	img, err := r.page.Screenshot(ctx, "course_detection")
	if err != nil {
		return nil, fmt.Errorf("failed to capture course list screenshot: %w", err)
	}

	raw, err := r.client.AnalyzeScreen(ctx, img, courseListPrompt)
	if err != nil {
		return nil, fmt.Errorf("course detection query failed: %w", err)
	}

	list := decision.DecodeCourseList(raw)
	if !list.HasCourses {
		r.logger.Info("Current page is not a course selection page.")
		return nil, nil
	}

	r.logger.Info("Detected courses.", zap.Int("count", len(list.Courses)))
	for i, c := range list.Courses {
		r.logger.Info("Course found.",
			zap.Int("index", i),
			zap.String("title", c.Title),
			zap.String("code", c.Code),
		)
	}
	return list.Courses, nil
}

// SelectCourse clicks the entry for one detected course by its visible text.
func (r *Runner) SelectCourse(ctx context.Context, course decision.Course) bool {
	needle := course.ElementText
	if needle == "" {
		needle = course.Title
	}
	if needle == "" {
		r.logger.Warn("Course entry has no clickable text.")
		return false
	}

	if !r.page.ClickByText(ctx, needle) {
		r.logger.Warn("Could not click course entry.", zap.String("text", needle))
		return false
	}
	r.page.WaitForLoad(ctx)
	r.logger.Info("Course selected.", zap.String("title", course.Title))
	return true
}
