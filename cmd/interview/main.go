// Command interview runs a mock interview in the terminal using the local
// microphone and speakers through ffmpeg and ffplay.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/careerpilot/server/adapters/audio"
	"github.com/satriahrh/careerpilot/server/adapters/live"
	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/internal/interview"
)

// console prints status changes and committed turns as they happen
type console struct {
	out  io.Writer
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func newConsole(out io.Writer) *console {
	return &console{out: out, done: make(chan struct{})}
}

func (c *console) OnStatusChange(status entities.SessionStatus, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s\n", status, entities.StatusMessage(status))
	if cause != nil {
		fmt.Fprintf(c.out, "        %v\n", cause)
	}
	if status.IsTerminal() {
		c.once.Do(func() { close(c.done) })
	}
}

func (c *console) OnTurns(turns []entities.TranscriptTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, turn := range turns {
		fmt.Fprintf(c.out, "%s: %s\n", speaker(turn.Role), turn.Content)
	}
}

func speaker(role entities.Role) string {
	if role == entities.RoleModel {
		return "Interviewer"
	}
	return "You"
}

func main() {
	debug := flag.Bool("debug", false, "log to stderr")
	model := flag.String("model", "", "live model (default from INTERVIEW_MODEL)")
	flag.Parse()

	_ = godotenv.Load()

	logger := zap.NewNop()
	if *debug {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	if err := run(*model, logger); err != nil {
		fmt.Fprintln(os.Stderr, "interview:", err)
		os.Exit(1)
	}
}

func run(model string, logger *zap.Logger) error {
	connector, err := live.NewGeminiLive(live.NewGeminiLiveConfigFromEnv(), logger)
	if err != nil {
		return err
	}

	config := interview.NewConfigFromEnv()
	if model != "" {
		config.Model = model
	}
	if err := interview.ValidateConfig(config); err != nil {
		return err
	}

	audioConfig := audio.NewConfigFromEnv()
	out := newConsole(os.Stdout)
	controller := interview.NewController(
		connector,
		audio.NewFFmpegMicrophone(audioConfig, logger),
		audio.NewFFplaySpeaker(audioConfig, logger),
		config,
		logger,
		interview.WithObserver(out),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := controller.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Press Enter to end the interview.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-waitForEnter(os.Stdin):
		case <-gctx.Done():
		case <-out.done:
		}
		controller.Stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printTranscript(os.Stdout, controller.Transcript())
	if controller.Status() == entities.SessionStatusError {
		if cause := controller.Err(); cause != nil {
			return cause
		}
		return errors.New("interview ended with an error")
	}
	return nil
}

func waitForEnter(r io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		bufio.NewReader(r).ReadString('\n')
		close(ch)
	}()
	return ch
}

func printTranscript(w io.Writer, turns []entities.TranscriptTurn) {
	fmt.Fprintln(w, "\n--- Transcript ---")
	if len(turns) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for _, turn := range turns {
		fmt.Fprintf(w, "%s: %s\n", speaker(turn.Role), turn.Content)
	}
}
