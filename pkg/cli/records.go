package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// caseFileEntry is one element of the JSON array read by `case put`
type caseFileEntry struct {
	ID       string          `json:"id"`
	TaskType string          `json:"task_type"`
	Summary  string          `json:"summary"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ruleFileEntry is one element of the JSON array read by `rule put`
type ruleFileEntry struct {
	ID         string  `json:"id"`
	Domain     string  `json:"domain"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func readJSONArray[T any](path string) ([]T, error) {
	// #nosec G304 - path is provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.V("path", path))
	}

	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, goerr.Wrap(err, "failed to parse JSON array", goerr.V("path", path))
	}
	return entries, nil
}

func loadCaseFile(path string) ([]*model.CaseRecord, error) {
	entries, err := readJSONArray[caseFileEntry](path)
	if err != nil {
		return nil, err
	}

	cases := make([]*model.CaseRecord, len(entries))
	for i, e := range entries {
		if e.ID == "" || e.Summary == "" {
			return nil, goerr.Wrap(model.ErrInvalidRecord, "case needs an id and a summary",
				goerr.V("index", i), goerr.V("path", path))
		}
		cases[i] = &model.CaseRecord{
			ID:       e.ID,
			TaskType: e.TaskType,
			Summary:  e.Summary,
			Payload:  e.Payload,
		}
	}
	return cases, nil
}

func loadRuleFile(path string) ([]*model.RuleRecord, error) {
	entries, err := readJSONArray[ruleFileEntry](path)
	if err != nil {
		return nil, err
	}

	rules := make([]*model.RuleRecord, len(entries))
	for i, e := range entries {
		if e.ID == "" || e.Text == "" {
			return nil, goerr.Wrap(model.ErrInvalidRecord, "rule needs an id and a text",
				goerr.V("index", i), goerr.V("path", path))
		}
		if err := model.ValidateConfidence(e.Confidence); err != nil {
			return nil, goerr.Wrap(err, "invalid rule", goerr.V(model.RecordIDKey, e.ID), goerr.V("path", path))
		}
		rules[i] = &model.RuleRecord{
			ID:         e.ID,
			Domain:     e.Domain,
			Text:       e.Text,
			Confidence: e.Confidence,
		}
	}
	return rules, nil
}

func cmdCase() *cli.Command {
	var rtCfg runtimeConfig
	var file string
	var id string

	return &cli.Command{
		Name:  "case",
		Usage: "Manage the case base",
		Flags: rtCfg.Flags(),
		Commands: []*cli.Command{
			{
				Name:  "put",
				Usage: "Import cases from a JSON array of {id, task_type, summary, payload}",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "file",
						Aliases:     []string{"f"},
						Usage:       "Path to the JSON file",
						Required:    true,
						Destination: &file,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cases, err := loadCaseFile(file)
					if err != nil {
						return err
					}

					rt, err := rtCfg.build(ctx)
					if err != nil {
						return err
					}
					defer rt.Close()

					for _, record := range cases {
						if err := rt.useCases.Cases.Put(ctx, record); err != nil {
							return goerr.Wrap(err, "failed to put case", goerr.V(model.RecordIDKey, record.ID))
						}
					}

					logging.From(ctx).Info("Cases imported", "count", len(cases), "file", file)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Remove a case",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "id",
						Usage:       "Case ID",
						Required:    true,
						Destination: &id,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := rtCfg.build(ctx)
					if err != nil {
						return err
					}
					defer rt.Close()

					if err := rt.useCases.Cases.Delete(ctx, id); err != nil {
						return goerr.Wrap(err, "failed to delete case", goerr.V(model.RecordIDKey, id))
					}
					logging.From(ctx).Info("Case deleted", "id", id)
					return nil
				},
			},
		},
	}
}

func cmdRule() *cli.Command {
	var rtCfg runtimeConfig
	var file string
	var id string

	return &cli.Command{
		Name:  "rule",
		Usage: "Manage the rule base",
		Flags: rtCfg.Flags(),
		Commands: []*cli.Command{
			{
				Name:  "put",
				Usage: "Import rules from a JSON array of {id, domain, text, confidence}",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "file",
						Aliases:     []string{"f"},
						Usage:       "Path to the JSON file",
						Required:    true,
						Destination: &file,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rules, err := loadRuleFile(file)
					if err != nil {
						return err
					}

					rt, err := rtCfg.build(ctx)
					if err != nil {
						return err
					}
					defer rt.Close()

					for _, record := range rules {
						if err := rt.useCases.Rules.Put(ctx, record); err != nil {
							return goerr.Wrap(err, "failed to put rule", goerr.V(model.RecordIDKey, record.ID))
						}
					}

					logging.From(ctx).Info("Rules imported", "count", len(rules), "file", file)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Remove a rule",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "id",
						Usage:       "Rule ID",
						Required:    true,
						Destination: &id,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := rtCfg.build(ctx)
					if err != nil {
						return err
					}
					defer rt.Close()

					if err := rt.useCases.Rules.Delete(ctx, id); err != nil {
						return goerr.Wrap(err, "failed to delete rule", goerr.V(model.RecordIDKey, id))
					}
					logging.From(ctx).Info("Rule deleted", "id", id)
					return nil
				},
			},
		},
	}
}
