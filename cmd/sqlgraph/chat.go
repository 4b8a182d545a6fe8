package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	dbID   string
	resume string
}

func newChatCommand(global *globalOptions) *cobra.Command {
	options := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask follow-up questions in an interactive session",
		Long: `The chat command opens a session over one database. Each line read from
standard input is one question; follow-up questions are rewritten with the
earlier turns before SQL is generated. Type "exit" or "quit", or send EOF,
to leave.

When chat.history is configured, turns are stored in PostgreSQL and a
session can be continued later with --resume.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := global.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if options.resume != "" {
				if err := app.engine.ResumeSession(cmd.Context(), options.resume); err != nil {
					return err
				}
				infos, err := app.engine.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				for _, info := range infos {
					if info.ID != options.resume {
						continue
					}
					if err := app.prepare(cmd.Context(), info.DBID); err != nil {
						return err
					}
				}
				chat, err := app.engine.Chat(cmd.Context(), options.resume)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed session %s after %d turn(s).\n", options.resume, len(chat.Turns()))
				return chatLoop(cmd.Context(), app, options.resume, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			dbID, err := resolveDatabase(app.config, options.dbID)
			if err != nil {
				return err
			}
			if err := app.prepare(cmd.Context(), dbID); err != nil {
				return err
			}
			id, err := app.engine.StartSession(cmd.Context(), dbID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chatting with %s. Type \"exit\" to leave.\n", dbID)
			return chatLoop(cmd.Context(), app, id, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&options.dbID, "db", "", "database id (defaults to the only configured database)")
	cmd.Flags().StringVar(&options.resume, "resume", "", "continue a session stored in the chat history")
	cmd.MarkFlagsMutuallyExclusive("db", "resume")
	return cmd
}

// chatLoop answers each line read from in as a turn of session id until EOF
// or an exit command. The live session ends with the loop; its logged turns,
// if any, are kept.
func chatLoop(ctx context.Context, app *runtime, id string, in io.Reader, out io.Writer) error {
	defer func() {
		_ = app.engine.EndSession(context.WithoutCancel(ctx), id)
		if app.config.Chat.History.DSN != "" {
			fmt.Fprintf(out, "Continue with: sqlgraph chat --resume %s\n", id)
		}
	}()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		result, err := app.engine.Turn(ctx, id, question)
		if err != nil {
			return err
		}
		if err := renderResult(out, result); err != nil {
			return err
		}
		if chat, err := app.engine.Chat(ctx, id); err == nil && len(chat.ReferencedTables()) > 0 {
			fmt.Fprintln(out, pterm.Gray("tables so far: "+strings.Join(chat.ReferencedTables(), ", ")))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
