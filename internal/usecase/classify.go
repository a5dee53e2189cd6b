package usecase

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Completer sends a single prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Classifier runs the two single-shot label classifications. Both calls are
// independent of each other and of any conversation state.
type Classifier struct {
	llm     Completer
	prompts *PromptSet
}

func NewClassifier(llm Completer, prompts *PromptSet) (*Classifier, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if prompts == nil {
		return nil, errors.New("usecase: prompts must not be nil")
	}
	return &Classifier{llm: llm, prompts: prompts}, nil
}

// Category returns the trimmed raw category label for query.
func (c *Classifier) Category(ctx context.Context, query string) (string, error) {
	prompt, err := c.prompts.categorizePrompt(query)
	if err != nil {
		return "", newError(ErrorInternal, "categorize_prompt", err)
	}
	raw, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		return "", completionError(ctx, "categorize_failed", err)
	}
	return strings.TrimSpace(raw), nil
}

// Sentiment returns the trimmed raw sentiment label for query.
func (c *Classifier) Sentiment(ctx context.Context, query string) (string, error) {
	prompt, err := c.prompts.sentimentPrompt(query)
	if err != nil {
		return "", newError(ErrorInternal, "sentiment_prompt", err)
	}
	raw, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		return "", completionError(ctx, "sentiment_failed", err)
	}
	return strings.TrimSpace(raw), nil
}

// rawLabels holds classifier output computed ahead of the stage loop.
type rawLabels struct {
	category  string
	sentiment string
}

// both runs the two classifications concurrently. The first failure cancels
// the other call.
func (c *Classifier) both(ctx context.Context, query string) (rawLabels, error) {
	var out rawLabels
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.Category(gctx, query)
		out.category = v
		return err
	})
	g.Go(func() error {
		v, err := c.Sentiment(gctx, query)
		out.sentiment = v
		return err
	})
	if err := g.Wait(); err != nil {
		return rawLabels{}, err
	}
	return out, nil
}
