package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/server"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"github.com/spf13/cobra"
)

func newRunCmd(app *App, opts *Options) *cobra.Command {
	var text, out string

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run one intake conversation in plain line mode",
		Long: "Run reads a problem statement (PDF, .txt or .md) or a --text description,\n" +
			"asks its questions one per line on stdin and prints the executive summary.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && strings.TrimSpace(text) == "" {
				return errors.New("give a document path or --text")
			}

			rt, err := app.runtime(cmd, *opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			var doc *document.Document
			if len(args) == 1 {
				if doc, err = rt.Extractor.Extract(ctx, args[0]); err != nil {
					return err
				}
			} else {
				doc = document.FromText("Problem description", text)
			}

			session := &lineSession{
				engine: rt.Engine,
				in:     bufio.NewScanner(cmd.InOrStdin()),
				out:    cmd.OutOrStdout(),
			}
			if src, ok := rt.Engine.(interface {
				SetProgressCallback(func(pipeline.Progress))
			}); ok {
				src.SetProgressCallback(func(p pipeline.Progress) {
					if p.Message != "" {
						fmt.Fprintln(cmd.ErrOrStderr(), p.Message)
					}
				})
			}

			conv, err := session.run(ctx, doc)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", conv.Summary)
			fmt.Fprintf(cmd.OutOrStdout(), "\nExported %d fields.\n", conv.Exported)

			if out != "" {
				data, err := template.Encode(conv.Merged)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record written to %s\n", out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "problem description to use instead of a file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the completed record as JSON to this file")

	return cmd
}

// lineSession runs a conversation over plain text lines.
type lineSession struct {
	engine server.Engine
	in     *bufio.Scanner
	out    io.Writer
}

func (l *lineSession) run(ctx context.Context, doc *document.Document) (pipeline.State, error) {
	s, err := l.engine.Ingest(ctx, l.engine.Start(), doc)
	prev := pipeline.PhaseAwaitingDocument

	for {
		if err != nil {
			if errors.Is(err, context.Canceled) || s.Fatal || !l.confirm(fmt.Sprintf("error: %v\nRetry? [Y/n] ", err)) {
				return s, err
			}
			s, err = l.retry(ctx, s, doc)
			continue
		}
		if s.Done() {
			return s, nil
		}

		q, ok := s.Current()
		if !ok {
			return s, fmt.Errorf("conversation stopped while %s", s.Phase)
		}
		if s.Phase == pipeline.PhaseAskingConflict && prev != pipeline.PhaseAskingConflict {
			fmt.Fprintln(l.out, "\nSome answers disagree with the document. A few more questions to settle them.")
		}
		prev = s.Phase

		fmt.Fprintf(l.out, "\n[%d/%d] %s\n> ", s.Index()+1, len(s.Questions), q.Text)
		line, ok := l.readLine()
		if !ok {
			return s, fmt.Errorf("input ended before question %d was answered", s.Index()+1)
		}

		ns, aerr := l.engine.Answer(ctx, s, line)
		if errors.Is(aerr, pipeline.ErrEmptyAnswer) {
			fmt.Fprintln(l.out, "Please type an answer.")
			continue
		}
		s, err = ns, aerr
	}
}

func (l *lineSession) retry(ctx context.Context, s pipeline.State, doc *document.Document) (pipeline.State, error) {
	if s.Phase == pipeline.PhaseAwaitingDocument {
		return l.engine.Ingest(ctx, s, doc)
	}
	return l.engine.Resume(ctx, s)
}

func (l *lineSession) confirm(prompt string) bool {
	fmt.Fprint(l.out, prompt)
	line, ok := l.readLine()
	if !ok {
		return false
	}
	switch strings.ToLower(line) {
	case "", "y", "yes":
		return true
	}
	return false
}

func (l *lineSession) readLine() (string, bool) {
	if !l.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(l.in.Text()), true
}
