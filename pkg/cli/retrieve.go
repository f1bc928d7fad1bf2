package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdRetrieve() *cli.Command {
	var rtCfg runtimeConfig
	var (
		sessionID     string
		query         string
		taskType      string
		domain        string
		requirements  string
		minConfidence float64
		topKMemories  int
		topKCases     int
		topKRules     int
		asJSON        bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session whose memory stream is searched (memories are skipped when empty)",
			Sources:     cli.EnvVars("MNEMOSYNE_SESSION"),
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Query text",
			Required:    true,
			Destination: &query,
		},
		&cli.StringFlag{
			Name:        "task-type",
			Usage:       "Restrict cases to this task type",
			Destination: &taskType,
		},
		&cli.StringFlag{
			Name:        "domain",
			Usage:       "Restrict rules to this domain",
			Destination: &domain,
		},
		&cli.StringFlag{
			Name:        "requirements",
			Usage:       "Domain requirements attached verbatim to the context",
			Destination: &requirements,
		},
		&cli.FloatFlag{
			Name:        "min-confidence",
			Usage:       "Minimum rule confidence (defaults to the config file value)",
			Value:       -1,
			Destination: &minConfidence,
		},
		&cli.IntFlag{
			Name:        "top-k-memories",
			Usage:       "Number of memories (defaults to the config file value)",
			Value:       -1,
			Destination: &topKMemories,
		},
		&cli.IntFlag{
			Name:        "top-k-cases",
			Usage:       "Number of cases (defaults to the config file value)",
			Value:       -1,
			Destination: &topKCases,
		},
		&cli.IntFlag{
			Name:        "top-k-rules",
			Usage:       "Number of rules (defaults to the config file value)",
			Value:       -1,
			Destination: &topKRules,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the retrieved context as JSON",
			Destination: &asJSON,
		},
	}

	return &cli.Command{
		Name:    "retrieve",
		Aliases: []string{"r"},
		Usage:   "Retrieve memories, similar cases and rules for a query",
		Flags:   append(rtCfg.Flags(), flags...),
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			input := rt.app.RetrieveDefaults()
			input.Query = query
			input.TaskType = taskType
			input.Domain = domain
			input.DomainRequirements = requirements
			if minConfidence >= 0 {
				input.MinConfidence = minConfidence
			}
			if topKMemories >= 0 {
				input.TopKMemories = topKMemories
			}
			if topKCases >= 0 {
				input.TopKCases = topKCases
			}
			if topKRules >= 0 {
				input.TopKRules = topKRules
			}

			if sessionID != "" {
				stream, err := rt.useCases.OpenMemoryStream(ctx, sessionID)
				if err != nil {
					return goerr.Wrap(err, "failed to open memory stream", goerr.V(model.SessionIDKey, sessionID))
				}
				input.Stream = stream
			}

			retrieved, err := rt.useCases.Retriever.RetrieveContext(ctx, input)
			if err != nil {
				return goerr.Wrap(err, "failed to retrieve context", goerr.V("query", query))
			}

			if asJSON {
				return printContextJSON(c.Root().Writer, retrieved)
			}
			printContext(c.Root().Writer, retrieved)
			return nil
		},
	}
}

type contextJSON struct {
	Query              string       `json:"query"`
	Memories           []memoryJSON `json:"memories"`
	Cases              []caseJSON   `json:"cases"`
	Rules              []ruleJSON   `json:"rules"`
	DomainRequirements string       `json:"domain_requirements,omitempty"`
	Degraded           []string     `json:"degraded,omitempty"`
	Rationale          string       `json:"rationale"`
}

type memoryJSON struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

type caseJSON struct {
	ID         string          `json:"id"`
	TaskType   string          `json:"task_type,omitempty"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Similarity float64         `json:"similarity"`
}

type ruleJSON struct {
	ID            string  `json:"id"`
	Domain        string  `json:"domain,omitempty"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	Similarity    float64 `json:"similarity"`
	WeightedScore float64 `json:"weighted_score"`
}

func toContextJSON(rc *model.RetrievedContext) contextJSON {
	out := contextJSON{
		Query:              rc.Query,
		Memories:           make([]memoryJSON, len(rc.Memories)),
		Cases:              make([]caseJSON, len(rc.Cases)),
		Rules:              make([]ruleJSON, len(rc.Rules)),
		DomainRequirements: rc.DomainRequirements,
		Rationale:          rc.Rationale,
	}
	for i, m := range rc.Memories {
		out.Memories[i] = memoryJSON{
			ID:         string(m.ID),
			Kind:       m.Kind.String(),
			Content:    m.Content,
			Importance: m.Importance,
			CreatedAt:  m.CreatedAt,
		}
	}
	for i, sc := range rc.Cases {
		out.Cases[i] = caseJSON{
			ID:         sc.Case.ID,
			TaskType:   sc.Case.TaskType,
			Summary:    sc.Case.Summary,
			Payload:    sc.Case.Payload,
			Similarity: sc.Similarity,
		}
	}
	for i, sr := range rc.Rules {
		out.Rules[i] = ruleJSON{
			ID:            sr.Rule.ID,
			Domain:        sr.Rule.Domain,
			Text:          sr.Rule.Text,
			Confidence:    sr.Rule.Confidence,
			Similarity:    sr.Similarity,
			WeightedScore: sr.WeightedScore,
		}
	}
	for _, d := range rc.Degraded {
		out.Degraded = append(out.Degraded, d.String())
	}
	return out
}

func printContextJSON(w io.Writer, rc *model.RetrievedContext) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toContextJSON(rc)); err != nil {
		return goerr.Wrap(err, "failed to encode retrieved context")
	}
	return nil
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	idColor      = color.New(color.FgHiBlack)
	scoreColor   = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
)

func printContext(w io.Writer, rc *model.RetrievedContext) {
	headingColor.Fprintf(w, "Query: %s\n", rc.Query)

	headingColor.Fprintf(w, "\nMemories (%d)\n", len(rc.Memories))
	for _, m := range rc.Memories {
		fmt.Fprintf(w, "  %s %s [%s] %s\n",
			idColor.Sprint(m.ID),
			scoreColor.Sprintf("importance=%.2f", m.Importance),
			m.Kind,
			m.Content,
		)
	}

	headingColor.Fprintf(w, "\nCases (%d)\n", len(rc.Cases))
	for _, sc := range rc.Cases {
		fmt.Fprintf(w, "  %s %s %s\n",
			idColor.Sprint(sc.Case.ID),
			scoreColor.Sprintf("similarity=%.3f", sc.Similarity),
			sc.Case.Summary,
		)
	}

	headingColor.Fprintf(w, "\nRules (%d)\n", len(rc.Rules))
	for _, sr := range rc.Rules {
		fmt.Fprintf(w, "  %s %s %s\n",
			idColor.Sprint(sr.Rule.ID),
			scoreColor.Sprintf("score=%.3f confidence=%.2f", sr.WeightedScore, sr.Rule.Confidence),
			sr.Rule.Text,
		)
	}

	if rc.DomainRequirements != "" {
		headingColor.Fprintln(w, "\nDomain requirements")
		fmt.Fprintf(w, "  %s\n", rc.DomainRequirements)
	}

	for _, d := range rc.Degraded {
		warnColor.Fprintf(w, "\n! %s timed out and was treated as empty\n", d)
	}

	headingColor.Fprintln(w, "\nRationale")
	fmt.Fprintf(w, "  %s\n", rc.Rationale)
}
