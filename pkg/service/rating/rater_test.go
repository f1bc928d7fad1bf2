package rating_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/service/rating"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{"5"}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func replying(text string) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{name: "integer", text: "7", want: 6.0 / 9.0},
		{name: "decimal", text: "5.5", want: 4.5 / 9.0},
		{name: "minimum", text: "1", want: 0},
		{name: "maximum", text: "10", want: 1},
		{name: "embedded in text", text: "I would rate this an 8 because it sets a deadline.", want: 7.0 / 9.0},
		{name: "scaled form wins over earlier numbers", text: "On a 1-10 scale: 9/10", want: 1.0 - 1.0/9.0},
		{name: "out of form", text: "Considering 2 factors, 4 out of 10", want: 3.0 / 9.0},
		{name: "scale restated in words", text: "On a scale of 1 to 10, this is an 8.", want: 7.0 / 9.0},
		{name: "scale restated in parentheses", text: "Rating (1-10): 8", want: 7.0 / 9.0},
		{name: "scale restated after the value", text: "8, on a 1-10 scale", want: 7.0 / 9.0},
		{name: "scale with from", text: "From 1 to 10 I'd say 3", want: 2.0 / 9.0},
		{name: "above range clamps", text: "42", want: 1},
		{name: "below range clamps", text: "-3", want: 0},
		{name: "zero clamps", text: "0", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rating.ParseRating(tt.text)
			gt.NoError(t, err).Required()
			gt.Bool(t, near(got, tt.want)).True()
		})
	}
}

func TestParseRating_NoNumber(t *testing.T) {
	_, err := rating.ParseRating("very important")
	gt.Error(t, err).Is(model.ErrRatingUnavailable)

	_, err = rating.ParseRating("")
	gt.Error(t, err).Is(model.ErrRatingUnavailable)
}

func TestRater_Rate(t *testing.T) {
	ctx := context.Background()

	t.Run("maps oracle rating", func(t *testing.T) {
		r, err := rating.New(replying("10"))
		gt.NoError(t, err).Required()
		gt.Value(t, r.Rate(ctx, "The client must close before June 30")).Equal(1.0)
	})

	t.Run("malformed response falls back", func(t *testing.T) {
		r, err := rating.New(replying("it depends"))
		gt.NoError(t, err).Required()
		gt.Value(t, r.Rate(ctx, "hello")).Equal(rating.DefaultFallback)
	})

	t.Run("empty response falls back", func(t *testing.T) {
		r, err := rating.New(replying(""), rating.WithFallback(0.3))
		gt.NoError(t, err).Required()
		gt.Value(t, r.Rate(ctx, "hello")).Equal(0.3)
	})

	t.Run("session error falls back", func(t *testing.T) {
		r, err := rating.New(&mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return nil, errors.New("unavailable")
			},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, r.Rate(ctx, "hello")).Equal(rating.DefaultFallback)
	})

	t.Run("generation error falls back", func(t *testing.T) {
		r, err := rating.New(&mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						return nil, errors.New("quota exceeded")
					},
				}, nil
			},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, r.Rate(ctx, "hello")).Equal(rating.DefaultFallback)
	})

	t.Run("timeout falls back", func(t *testing.T) {
		r, err := rating.New(&mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					},
				}, nil
			},
		}, rating.WithTimeout(10*time.Millisecond))
		gt.NoError(t, err).Required()
		gt.Value(t, r.Rate(ctx, "hello")).Equal(rating.DefaultFallback)
	})

	t.Run("content is sent to the oracle", func(t *testing.T) {
		var got string
		r, err := rating.New(&mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						if len(input) > 0 {
							if text, ok := input[0].(gollem.Text); ok {
								got = string(text)
							}
						}
						return &gollem.Response{Texts: []string{"4"}}, nil
					},
				}, nil
			},
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, near(r.Rate(ctx, "refinance before rate change"), 3.0/9.0)).True()
		gt.String(t, got).Contains("refinance before rate change")
	})
}

func TestRater_AlwaysInUnitRange(t *testing.T) {
	responses := []string{"", "NaN", "1e9", "-1e9", "seven", "3.7", "  8  ", "Rating: 11/10", ".5"}
	for _, resp := range responses {
		r, err := rating.New(replying(resp))
		gt.NoError(t, err).Required()
		v := r.Rate(context.Background(), "x")
		gt.Bool(t, v >= 0 && v <= 1).True()
	}
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := rating.New(nil)
	gt.Value(t, err).NotNil()
}

func TestStatic(t *testing.T) {
	gt.Value(t, rating.NewStatic(0.7).Rate(context.Background(), "x")).Equal(0.7)
	gt.Value(t, rating.NewStatic(3).Rate(context.Background(), "x")).Equal(1.0)
	gt.Value(t, rating.NewStatic(-1).Rate(context.Background(), "x")).Equal(0.0)
}
