// Package eval runs the transcript evaluation: four fixed prompts fired
// in parallel against a completion endpoint, rendered as four panels.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrNoCompleter is returned when the runner is built without a
// completion function.
var ErrNoCompleter = errors.New("eval: completion function required")

// CompleteFunc sends one prompt to the completion endpoint and returns
// the raw reply text.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// RubricScores are the per-dimension scores, 1-5 each.
type RubricScores struct {
	Accuracy   int `json:"accuracy"`
	Empathy    int `json:"empathy"`
	Clarity    int `json:"clarity"`
	Resolution int `json:"resolution"`
}

// Panel is one evaluation result. When the endpoint's reply fails to
// parse as the expected JSON, Raw carries the text verbatim and the
// structured field is left zero.
type Panel[T any] struct {
	Value T
	// Raw is set instead of Value when the reply was not valid JSON.
	Raw string
}

// Report aggregates the four evaluation panels.
type Report struct {
	Summary         Panel[string]
	Rubric          Panel[RubricScores]
	Recommendations Panel[[]string]
	SuggestedReply  Panel[string]
}

// Runner evaluates transcripts.
type Runner struct {
	complete CompleteFunc
}

// NewRunner creates a runner over the given completion function.
func NewRunner(complete CompleteFunc) (*Runner, error) {
	if complete == nil {
		return nil, ErrNoCompleter
	}
	return &Runner{complete: complete}, nil
}

// Evaluate fires all four prompts concurrently and joins the results.
// A single failed call fails the whole report; no partial results are
// returned. Parse failures are not call failures: they degrade to raw
// text in the affected panel.
func (r *Runner) Evaluate(ctx context.Context, transcript string) (Report, error) {
	var report Report

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, err := r.complete(gctx, fmt.Sprintf(summaryPrompt, transcript))
		if err != nil {
			return fmt.Errorf("eval: summary: %w", err)
		}
		var parsed struct {
			Summary string `json:"summary"`
		}
		if json.Unmarshal([]byte(raw), &parsed) != nil || parsed.Summary == "" {
			report.Summary = Panel[string]{Raw: raw}
			return nil
		}
		report.Summary = Panel[string]{Value: parsed.Summary}
		return nil
	})

	g.Go(func() error {
		raw, err := r.complete(gctx, fmt.Sprintf(rubricPrompt, transcript))
		if err != nil {
			return fmt.Errorf("eval: rubric: %w", err)
		}
		var parsed RubricScores
		if json.Unmarshal([]byte(raw), &parsed) != nil || parsed == (RubricScores{}) {
			report.Rubric = Panel[RubricScores]{Raw: raw}
			return nil
		}
		report.Rubric = Panel[RubricScores]{Value: parsed}
		return nil
	})

	g.Go(func() error {
		raw, err := r.complete(gctx, fmt.Sprintf(recommendationsPrompt, transcript))
		if err != nil {
			return fmt.Errorf("eval: recommendations: %w", err)
		}
		var parsed struct {
			Recommendations []string `json:"recommendations"`
		}
		if json.Unmarshal([]byte(raw), &parsed) != nil || len(parsed.Recommendations) == 0 {
			report.Recommendations = Panel[[]string]{Raw: raw}
			return nil
		}
		report.Recommendations = Panel[[]string]{Value: parsed.Recommendations}
		return nil
	})

	g.Go(func() error {
		raw, err := r.complete(gctx, fmt.Sprintf(suggestedReplyPrompt, transcript))
		if err != nil {
			return fmt.Errorf("eval: suggested reply: %w", err)
		}
		var parsed struct {
			Reply string `json:"reply"`
		}
		if json.Unmarshal([]byte(raw), &parsed) != nil || parsed.Reply == "" {
			report.SuggestedReply = Panel[string]{Raw: raw}
			return nil
		}
		report.SuggestedReply = Panel[string]{Value: parsed.Reply}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return report, nil
}
