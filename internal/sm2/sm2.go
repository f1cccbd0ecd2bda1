// Package sm2 computes card schedules with an SM-2 derived algorithm.
//
// The computation is pure: the review time is always passed in, so the same
// inputs produce the same schedule. Intervals are whole days and next review
// dates are derived with calendar-day addition (time.Time.AddDate), not
// multiples of 24 hours, so a daylight-saving change never shifts a due date.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// ErrInvalidQuality is returned when a quality is not one of Hard, Good or Easy.
var ErrInvalidQuality = errors.New("invalid review quality")

const (
	// MinEaseFactor is the floor every ease factor is clamped to.
	MinEaseFactor = 1.3
	// SuccessThreshold is the lowest evaluation that counts as a successful review.
	SuccessThreshold Evaluation = 3

	firstInterval  = 1
	secondInterval = 6
	failedInterval = 1
	failurePenalty = 0.2
)

// Quality is the user's judgment of a review, one of three buttons.
type Quality int

const (
	Hard Quality = 1
	Good Quality = 2
	Easy Quality = 3
)

// Valid reports whether q is Hard, Good or Easy.
func (q Quality) Valid() bool {
	return q >= Hard && q <= Easy
}

func (q Quality) String() string {
	switch q {
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return "quality(" + strconv.Itoa(int(q)) + ")"
}

// ParseQuality parses a form value ("1".."3" or "hard", "good", "easy").
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "hard":
		return Hard, nil
	case "2", "good":
		return Good, nil
	case "3", "easy":
		return Easy, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}

// Evaluation is a grade on the 0-5 SM-2 scale.
type Evaluation int

// Success reports whether e counts as a successful recall.
func (e Evaluation) Success() bool {
	return e >= SuccessThreshold
}

// Scale maps the three visible qualities onto evaluations.
type Scale string

const (
	// ScaleLiteral passes 1/2/3 through unchanged, so only Easy is a success.
	ScaleLiteral Scale = "literal"
	// ScaleCalibrated maps Hard/Good/Easy to 3/4/5, so all three are successes.
	ScaleCalibrated Scale = "calibrated"
)

// Evaluate returns the evaluation for q under the scale, clamped to 0..5.
// An unknown scale behaves like ScaleLiteral.
func (s Scale) Evaluate(q Quality) Evaluation {
	e := Evaluation(q)
	if s == ScaleCalibrated {
		e += 2
	}
	return max(0, min(e, 5))
}

// Engine applies NextState to qualities picked by a user.
// The zero value uses ScaleLiteral.
type Engine struct {
	Scale Scale
}

// NewEngine returns an engine for the given scale.
func NewEngine(scale Scale) Engine {
	return Engine{Scale: scale}
}

// Next computes the schedule that follows a review of quality q at reviewedAt.
// Callers check q with Quality.Valid first: an invalid q is not rejected here
// but clamped by Scale.Evaluate, so it never raises the ease past an Easy review.
func (e Engine) Next(current domain.Schedule, q Quality, reviewedAt time.Time) domain.Schedule {
	return NextState(current, e.Scale.Evaluate(q), reviewedAt)
}

// NextState calculates the schedule after a review graded eval at reviewedAt.
//
// On success the interval goes 1, 6, then round(interval * easeFactor) and the
// ease factor moves by 0.1 - (5-q)*(0.08 + (5-q)*0.02). On failure the interval
// is 1, repetitions drop to 0 and the ease factor loses 0.2. The ease factor
// never goes below MinEaseFactor. NextReview is reviewedAt plus Interval
// calendar days.
func NextState(current domain.Schedule, eval Evaluation, reviewedAt time.Time) domain.Schedule {
	var next domain.Schedule

	if eval.Success() {
		switch current.Repetitions {
		case 0:
			next.Interval = firstInterval
		case 1:
			next.Interval = secondInterval
		default:
			next.Interval = int(math.Round(float64(current.Interval) * current.EaseFactor))
		}
		next.EaseFactor = newEaseFactor(current.EaseFactor, eval)
		next.Repetitions = current.Repetitions + 1
	} else {
		next.Interval = failedInterval
		next.EaseFactor = math.Max(MinEaseFactor, current.EaseFactor-failurePenalty)
		next.Repetitions = 0
	}

	// A corrupted stored interval must not produce a review in the past.
	if next.Interval < 1 {
		next.Interval = 1
	}

	lastReviewed := reviewedAt
	nextReview := NextReviewDate(reviewedAt, next.Interval)
	next.LastReviewed = &lastReviewed
	next.NextReview = &nextReview
	return next
}

func newEaseFactor(current float64, eval Evaluation) float64 {
	d := float64(5 - eval)
	return math.Max(MinEaseFactor, current+(0.1-d*(0.08+d*0.02)))
}

// NextReviewDate returns reviewedAt advanced by interval calendar days.
func NextReviewDate(reviewedAt time.Time, interval int) time.Time {
	return reviewedAt.AddDate(0, 0, interval)
}
