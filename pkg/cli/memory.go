package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMemory() *cli.Command {
	var rtCfg runtimeConfig
	var sessionID string

	sessionFlag := &cli.StringFlag{
		Name:        "session",
		Aliases:     []string{"s"},
		Usage:       "Session whose memory stream is used",
		Required:    true,
		Sources:     cli.EnvVars("MNEMOSYNE_SESSION"),
		Destination: &sessionID,
	}

	return &cli.Command{
		Name:    "memory",
		Aliases: []string{"mem"},
		Usage:   "Manage the memory stream of a session",
		Flags:   append(rtCfg.Flags(), sessionFlag),
		Commands: []*cli.Command{
			cmdMemoryAdd(&rtCfg, &sessionID),
			cmdMemoryList(&rtCfg, &sessionID),
			cmdMemoryDelete(&rtCfg, &sessionID),
			cmdMemoryClear(&rtCfg, &sessionID),
			cmdMemoryExport(&rtCfg, &sessionID),
		},
	}
}

func cmdMemoryAdd(rtCfg *runtimeConfig, sessionID *string) *cli.Command {
	var kind string
	var content string

	return &cli.Command{
		Name:  "add",
		Usage: "Append an observation or a reflection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "kind",
				Aliases:     []string{"k"},
				Usage:       "Memory kind (observation, reflection)",
				Value:       types.MemoryKindObservation.String(),
				Destination: &kind,
			},
			&cli.StringFlag{
				Name:        "content",
				Usage:       "Text to remember",
				Required:    true,
				Destination: &content,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			memoryKind, err := types.ParseMemoryKind(kind)
			if err != nil {
				return goerr.Wrap(err, "invalid --kind")
			}

			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stream, err := rt.useCases.OpenMemoryStream(ctx, *sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to open memory stream", goerr.V(model.SessionIDKey, *sessionID))
			}

			node, err := stream.Add(ctx, memoryKind, content)
			if err != nil {
				return goerr.Wrap(err, "failed to add memory", goerr.V(model.SessionIDKey, *sessionID))
			}
			if !stream.Durable() {
				logging.From(ctx).Warn("Memory was kept in process only, it will not be visible to later invocations",
					"id", node.ID)
			}

			fmt.Fprintf(c.Root().Writer, "%s\t%s\timportance=%.2f\n", node.ID, node.Kind, node.Importance)
			return nil
		},
	}
}

func cmdMemoryList(rtCfg *runtimeConfig, sessionID *string) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the memories of the session in creation order",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stream, err := rt.useCases.OpenMemoryStream(ctx, *sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to open memory stream", goerr.V(model.SessionIDKey, *sessionID))
			}

			for _, node := range stream.Nodes() {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%.2f\t%s\n",
					node.ID,
					node.CreatedAt.Format(time.RFC3339),
					node.Kind,
					node.Importance,
					node.Content,
				)
			}
			return nil
		},
	}
}

func cmdMemoryDelete(rtCfg *runtimeConfig, sessionID *string) *cli.Command {
	var id string

	return &cli.Command{
		Name:    "delete",
		Aliases: []string{"rm"},
		Usage:   "Forget one memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Memory ID",
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

			stream, err := rt.useCases.OpenMemoryStream(ctx, *sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to open memory stream", goerr.V(model.SessionIDKey, *sessionID))
			}
			if err := stream.Delete(ctx, model.MemoryID(id)); err != nil {
				return goerr.Wrap(err, "failed to delete memory", goerr.V(model.RecordIDKey, id))
			}

			logging.From(ctx).Info("Memory deleted", "session_id", *sessionID, "id", id)
			return nil
		},
	}
}

func cmdMemoryClear(rtCfg *runtimeConfig, sessionID *string) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Forget every memory of the session",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stream, err := rt.useCases.OpenMemoryStream(ctx, *sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to open memory stream", goerr.V(model.SessionIDKey, *sessionID))
			}
			count := stream.Len()
			if err := stream.Clear(ctx); err != nil {
				return goerr.Wrap(err, "failed to clear memory stream", goerr.V(model.SessionIDKey, *sessionID))
			}

			logging.From(ctx).Info("Memory stream cleared", "session_id", *sessionID, "count", count)
			return nil
		},
	}
}

func cmdMemoryExport(rtCfg *runtimeConfig, sessionID *string) *cli.Command {
	var output string

	return &cli.Command{
		Name:  "export",
		Usage: "Write the session's memory stream as JSON to a file or a gs:// object",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Destination path, gs://bucket/object, or - for stdout",
				Value:       "-",
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stream, err := rt.useCases.OpenMemoryStream(ctx, *sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to open memory stream", goerr.V(model.SessionIDKey, *sessionID))
			}

			data, err := marshalMemoryExport(*sessionID, stream.Nodes())
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := c.Root().Writer.Write(data)
				return err
			}
			if err := writeExport(ctx, output, data); err != nil {
				return err
			}

			logging.From(ctx).Info("Memory stream exported",
				"session_id", *sessionID,
				"count", stream.Len(),
				"output", output,
			)
			return nil
		},
	}
}

type exportedMemory struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	Importance     float64   `json:"importance"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

type memoryExport struct {
	SessionID  string           `json:"session_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Memories   []exportedMemory `json:"memories"`
}

func marshalMemoryExport(sessionID string, nodes []*model.MemoryNode) ([]byte, error) {
	export := memoryExport{
		SessionID:  sessionID,
		ExportedAt: time.Now().UTC(),
		Memories:   make([]exportedMemory, len(nodes)),
	}
	for i, n := range nodes {
		export.Memories[i] = exportedMemory{
			ID:             string(n.ID),
			Kind:           n.Kind.String(),
			Content:        n.Content,
			Importance:     n.Importance,
			CreatedAt:      n.CreatedAt,
			LastAccessedAt: n.LastAccessedAt,
			Embedding:      n.Embedding,
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal memory export", goerr.V(model.SessionIDKey, sessionID))
	}
	return append(data, '\n'), nil
}
