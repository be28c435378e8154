package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/rollcall/internal/client"
	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
)

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Run an interactive assessment session against a server",
		RunE:  runAsk,
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "Base URL of the rollcall server")
	f.String("email", "", "Teacher email (required)")
	f.String("password", "", "Teacher password (or set ROLLCALL_PASSWORD)")
	f.String("class", "", "Class ID (required)")
	f.StringP("lang", "l", appI18n.DefaultLang, "Language of prompts (ar, en)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

func runAsk(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.Context(cmd.Context(), v.GetString("lang"))

	c := client.New(v.GetString("server"))
	if _, err := c.Login(ctx, v.GetString("email"), v.GetString("password")); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer c.Logout(context.WithoutCancel(ctx))

	view := client.NewClassView(c, v.GetString("class"))
	if _, err := view.Get(ctx); err != nil {
		return fmt.Errorf("load class: %w", err)
	}
	return askLoop(ctx, c, view, cmd.InOrStdin(), cmd.OutOrStdout())
}

// askLoop picks students until the teacher quits or input ends, then
// prints the class summary.
func askLoop(ctx context.Context, c *client.Client, view *client.ClassView, in io.Reader, out io.Writer) error {
	a := client.NewAssessor(c, view.ClassID(), view)
	a.OnCycleComplete = func() {
		fmt.Fprintln(out, appI18n.T(ctx, "AskCycleComplete"))
	}

	lines := bufio.NewScanner(in)
	pick := a.Next
loop:
	for {
		st, err := pick(ctx)
		if errors.Is(err, client.ErrEmptyRoster) {
			fmt.Fprintln(out, appI18n.T(ctx, "ErrEmptyRoster"))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, studentLine(ctx, st))

		choice, ok := readChoice(ctx, lines, out)
		if !ok {
			break
		}
		switch choice {
		case "c", "w":
			if _, err := a.Mark(ctx, choice == "c"); err != nil {
				return fmt.Errorf("record assessment: %w", err)
			}
			fmt.Fprintln(out, appI18n.T(ctx, "AskRecorded"))
			pick = a.Next
		case "s":
			pick = a.Skip
		case "q":
			break loop
		}
	}

	data, err := view.Get(ctx)
	if err != nil {
		return fmt.Errorf("load statistics: %w", err)
	}
	snap := data.Statistics
	fmt.Fprintln(out, appI18n.Td(ctx, "AskSummary", map[string]any{
		"Assessed": snap.AssessedStudents,
		"Total":    snap.TotalStudents,
		"Correct":  snap.CorrectAnswers,
		"Answers":  snap.TotalAssessments,
	}))
	return nil
}

func studentLine(ctx context.Context, st model.Student) string {
	name := st.DisplayName()
	if name == "" {
		name = "-"
	}
	return appI18n.Td(ctx, "AskStudent", map[string]any{"Name": name, "Number": st.StudentNumber})
}

// readChoice prompts until a known key is entered. It reports false when
// input ends.
func readChoice(ctx context.Context, lines *bufio.Scanner, out io.Writer) (string, bool) {
	for {
		fmt.Fprint(out, appI18n.T(ctx, "AskPrompt"))
		if !lines.Scan() {
			fmt.Fprintln(out)
			return "", false
		}
		switch choice := strings.ToLower(strings.TrimSpace(lines.Text())); choice {
		case "c", "w", "s", "q":
			return choice, true
		}
		fmt.Fprintln(out, appI18n.T(ctx, "AskUnknownKey"))
	}
}
