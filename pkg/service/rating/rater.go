package rating

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

const (
	// DefaultFallback is "medium importance", returned whenever no rating can be obtained
	DefaultFallback = 0.5

	// DefaultTimeout bounds a single oracle call
	DefaultTimeout = 15 * time.Second

	minRating = 1.0
	maxRating = 10.0
)

const systemPrompt = `You rate how important a piece of information is for an ongoing advisory conversation.
Use a scale from 1 to 10, where 1 is purely mundane (small talk, greetings, filler) and 10 is critical (hard constraints, goals, deadlines, financial or legal facts that change the advice).
Reply with the number only.`

// Rater asks a gollem LLM for a 1-10 rating and maps it onto [0,1].
// The client should be configured with zero temperature so identical content
// gets the same score.
type Rater struct {
	llmClient gollem.LLMClient
	timeout   time.Duration
	fallback  float64
}

var _ interfaces.ImportanceRater = &Rater{}

type Option func(*Rater)

func WithTimeout(d time.Duration) Option {
	return func(r *Rater) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithFallback(v float64) Option {
	return func(r *Rater) {
		r.fallback = clampUnit(v)
	}
}

func New(llmClient gollem.LLMClient, opts ...Option) (*Rater, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	r := &Rater{
		llmClient: llmClient,
		timeout:   DefaultTimeout,
		fallback:  DefaultFallback,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rate never fails: any oracle or parse error is logged and the fallback is returned
func (r *Rater) Rate(ctx context.Context, content string) float64 {
	score, err := r.rate(ctx, content)
	if err != nil {
		logging.From(ctx).Warn("importance rating unavailable, using fallback",
			"error", err,
			"fallback", r.fallback,
		)
		return r.fallback
	}
	return score
}

func (r *Rater) rate(ctx context.Context, content string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	session, err := r.llmClient.NewSession(ctx, gollem.WithSessionSystemPrompt(systemPrompt))
	if err != nil {
		return 0, goerr.Wrap(model.ErrRatingUnavailable, "failed to create LLM session", goerr.V("error", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text("Information:\n"+content))
	if err != nil {
		return 0, goerr.Wrap(model.ErrRatingUnavailable, "failed to generate rating", goerr.V("error", err.Error()))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return 0, goerr.Wrap(model.ErrRatingUnavailable, "empty rating response")
	}

	return ParseRating(strings.Join(resp.Texts, " "))
}

var (
	// "7/10", "7 out of 10"
	scaledPattern = regexp.MustCompile(`([-+]?\d+(?:\.\d+)?)\s*(?:/|out of)\s*10\b`)
	numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?|[-+]?\.\d+`)
	// "1 to 10", "1-10", "(1-10)", "from 1 to 10"
	rangePattern = regexp.MustCompile(`(?i)\(?\s*(?:from\s+)?\b1\s*(?:-|–|to)\s*10\b\s*\)?`)
)

// ParseRating extracts a 1-10 rating from free text, clamps it to [1,10] and
// maps it linearly onto [0,1]. Restatements of the scale such as "1 to 10"
// are ignored. A value written as "n/10" or "n out of 10" wins over the first
// bare number.
func ParseRating(text string) (float64, error) {
	text = rangePattern.ReplaceAllString(text, " ")

	raw := ""
	if m := scaledPattern.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if m := numberPattern.FindString(text); m != "" {
		raw = m
	}
	if raw == "" {
		return 0, goerr.Wrap(model.ErrRatingUnavailable, "no number in rating response", goerr.V("response", text))
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, goerr.Wrap(model.ErrRatingUnavailable, "invalid rating value", goerr.V("response", text))
	}

	v = math.Max(minRating, math.Min(maxRating, v))
	return (v - minRating) / (maxRating - minRating), nil
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultFallback
	}
	return math.Max(0, math.Min(1, v))
}
