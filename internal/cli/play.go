package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"assessment-service/internal/app"
	"assessment-service/internal/config"
	"assessment-service/internal/domain"
	"assessment-service/internal/engine"
	"github.com/spf13/cobra"
)

// NewPlayCmd runs one assessment session in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var scope, mode, learner string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take an assessment in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			m, err := engine.ParseMode(mode)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			b, err := openBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			service := newService(cfg, b, log)
			return play(cmd.Context(), service, learner, scope, m, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "chapter-1", "assessment scope to take")
	cmd.Flags().StringVar(&mode, "mode", "review", "review or immediate")
	cmd.Flags().StringVar(&learner, "learner", "cli", "learner id used for history")
	return cmd
}

const playHelp = `commands: <n> answer option n, n/p next/previous, s submit, r restart, q quit`

// console serialises writes from the input loop and the update printer.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func play(ctx context.Context, service *app.AssessmentService, learner, scope string, mode engine.Mode, in io.Reader, out io.Writer) error {
	session, err := service.Open(ctx, learner, scope, mode)
	if err != nil {
		return err
	}
	defer service.Close(session.ID)

	ctrl := session.Controller
	con := &console{out: out}

	updates, cancel, err := ctrl.Subscribe()
	if err != nil {
		return err
	}
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printUpdates(con, ctrl.Bank(), updates)
	}()
	defer func() {
		// flush persistence outcomes to the printer before detaching
		service.Wait()
		cancel()
		<-printerDone
	}()

	if err := ctrl.Start(); err != nil {
		if errors.Is(err, domain.ErrAssessmentUnavailable) {
			con.printf("no assessment available for %q\n", scope)
			return nil
		}
		return err
	}
	con.printf("%s\n", playHelp)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "q" {
			break
		}
		if err := playCommand(ctrl, cmd); err != nil {
			con.printf("! %v\n", err)
		}
	}
	return scanner.Err()
}

func playCommand(ctrl *engine.Controller, cmd string) error {
	snap, err := ctrl.Snapshot()
	if err != nil {
		return err
	}
	switch cmd {
	case "":
		return nil
	case "n":
		return ctrl.GoToQuestion(snap.CurrentQuestionIndex + 1)
	case "p":
		return ctrl.GoToQuestion(snap.CurrentQuestionIndex - 1)
	case "s":
		_, err := ctrl.Submit()
		return err
	case "r":
		return ctrl.Restart()
	}
	n, err := strconv.Atoi(cmd)
	if err != nil {
		return fmt.Errorf("unknown command %q (%s)", cmd, playHelp)
	}
	q := ctrl.Bank().At(snap.CurrentQuestionIndex)
	_, err = ctrl.SelectAnswer(q.ID, domain.Answer{Index: n - 1})
	return err
}

func printUpdates(con *console, bank *engine.Bank, updates <-chan engine.Update) {
	lastIndex, lastAttempt := -1, 0
	for u := range updates {
		snap := u.Snapshot
		switch u.Type {
		case engine.UpdateState:
			if snap == nil || snap.Status != domain.StatusInProgress {
				continue
			}
			if snap.CurrentQuestionIndex == lastIndex && snap.Attempt == lastAttempt {
				continue
			}
			lastIndex, lastAttempt = snap.CurrentQuestionIndex, snap.Attempt
			printQuestion(con, bank, snap)
		case engine.UpdateTick:
			if r := snap.RemainingSeconds; r > 0 && (r <= 10 || r%30 == 0) {
				con.printf("  %ds left\n", r)
			}
		case engine.UpdateFeedback:
			if fb := u.Feedback; fb != nil && fb.Correct != nil {
				verdict := "wrong"
				if *fb.Correct {
					verdict = "correct"
				}
				con.printf("  %s (score %d)\n", verdict, fb.RunningScore)
			}
		case engine.UpdateWarning:
			con.printf("! %s\n", u.Message)
		case engine.UpdateCompleted:
			res := u.Result
			outcome := "not passed"
			if res.Passed {
				outcome = "passed"
			}
			con.printf("\nfinished (%s): %d/%d points, %d%% - %s (pass mark %d%%), %ds, %d integrity warnings\n",
				res.Reason, res.RawScore, res.TotalPossiblePoints, res.Percentage, outcome,
				res.PassingScorePercent, res.TimeTakenSeconds, res.IntegrityViolationCount)
			con.printf("r to retake, q to quit\n")
			lastIndex = -1
		case engine.UpdatePersisted:
			con.printf("  %s\n", u.Message)
		case engine.UpdatePersistFailed:
			con.printf("! result not saved: %s\n", u.Message)
		}
	}
}

func printQuestion(con *console, bank *engine.Bank, snap *engine.Snapshot) {
	q := bank.At(snap.CurrentQuestionIndex)
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n[%d/%d] %s  (%ds left)\n", snap.CurrentQuestionIndex+1, snap.QuestionCount, q.Prompt, snap.RemainingSeconds)
	chosen, answered := snap.Answers[q.ID]
	for i, opt := range q.Options {
		mark := " "
		if answered && (chosen.Index == i || chosen.Text == opt) {
			mark = "*"
		}
		fmt.Fprintf(&sb, " %s %d) %s\n", mark, i+1, opt)
	}
	con.printf("%s", sb.String())
}
