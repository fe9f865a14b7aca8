// Package ensemble handles crisis-flagged turns: two parallel
// generations at different temperatures, judged against an empathy
// rubric. The chosen text replaces normal streaming for the turn.
package ensemble

import (
	"context"
	"fmt"

	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
)

const (
	focusedTemp     = 0.4
	exploratoryTemp = 0.9
	fallbackTemp    = 0.7
)

const judgeSystem = `You compare two candidate responses to a person in
emotional crisis. Judge strictly on: empathy, validation of the
person's feelings, inclusion of crisis resources where appropriate,
warmth, and absence of dismissiveness. Return choice 1 or 2 for the
better response and a one-sentence justification.`

type judgement struct {
	Choice        int    `json:"choice"`
	Justification string `json:"justification"`
}

// Ensemble runs the escalated generation path. Safe for concurrent use.
type Ensemble struct {
	llm       llm.Client
	topModel  string
	fastModel string
	logger    log.Logger
}

// New creates an Ensemble using topModel for generations and fastModel
// for judging.
func New(client llm.Client, topModel, fastModel string, logger log.Logger) *Ensemble {
	return &Ensemble{
		llm:       client,
		topModel:  topModel,
		fastModel: fastModel,
		logger:    logger.With("component", "ensemble"),
	}
}

// Generate produces the crisis response. Both candidate generations run
// in parallel; any failure anywhere falls back to a single top-tier
// completion at a moderate temperature. A crisis turn never fails
// outright unless even the fallback generation fails.
func (e *Ensemble) Generate(ctx context.Context, system, prompt string) (string, error) {
	type genResult struct {
		text string
		err  error
	}
	focusedCh := make(chan genResult, 1)
	exploratoryCh := make(chan genResult, 1)

	gen := func(temp float32, out chan<- genResult) {
		text, err := e.llm.GenerateText(ctx, llm.Request{
			Model:       e.topModel,
			System:      system,
			Prompt:      prompt,
			Temperature: temp,
		})
		out <- genResult{text, err}
	}
	go gen(focusedTemp, focusedCh)
	go gen(exploratoryTemp, exploratoryCh)

	fr := <-focusedCh
	er := <-exploratoryCh
	if fr.err != nil || er.err != nil {
		e.logger.Warn("ensemble generation failed, falling back to single completion",
			"focused_error", fr.err, "exploratory_error", er.err)
		return e.fallback(ctx, system, prompt)
	}

	choice, err := e.judge(ctx, prompt, fr.text, er.text)
	if err != nil {
		e.logger.Warn("ensemble judge failed, falling back to single completion", "error", err)
		return e.fallback(ctx, system, prompt)
	}

	if choice == 2 {
		return er.text, nil
	}
	return fr.text, nil
}

func (e *Ensemble) judge(ctx context.Context, userMessage, first, second string) (int, error) {
	var j judgement
	err := e.llm.GenerateData(ctx, llm.Request{
		Model:  e.fastModel,
		System: judgeSystem,
		Prompt: fmt.Sprintf("User message:\n%s\n\nResponse 1:\n%s\n\nResponse 2:\n%s",
			userMessage, first, second),
	}, &j)
	if err != nil {
		return 0, err
	}
	if j.Choice != 1 && j.Choice != 2 {
		return 0, fmt.Errorf("judge returned invalid choice %d", j.Choice)
	}
	e.logger.Debug("ensemble judgement", "choice", j.Choice, "justification", j.Justification)
	return j.Choice, nil
}

func (e *Ensemble) fallback(ctx context.Context, system, prompt string) (string, error) {
	text, err := e.llm.GenerateText(ctx, llm.Request{
		Model:       e.topModel,
		System:      system,
		Prompt:      prompt,
		Temperature: fallbackTemp,
	})
	if err != nil {
		return "", fmt.Errorf("ensemble fallback generation: %w", err)
	}
	return text, nil
}
