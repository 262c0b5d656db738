// Command idupload attaches an ID document to a student record.
//
//	idupload submit -student-id 1023 -file id.png
//	idupload prompt
//	idupload serve -addr :3000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/trixmart/go-idupload/config"
	"github.com/trixmart/go-idupload/network"
	"github.com/trixmart/go-idupload/selection"
	"github.com/trixmart/go-idupload/uploadform"
	"golang.org/x/term"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage error")

type app struct {
	logger     log.Logger
	envRepo    env.Repository
	output     io.Writer
	resolver   func(logger log.Logger) selection.SourceResolver
	ask        func(qs []*survey.Question, response interface{}) error
	isTerminal func() bool
	serve      func(ctx context.Context, addr string, orchestrator *uploadform.Orchestrator, logger log.Logger) error
}

func newApp() app {
	return app{
		logger:  log.NewLogger(),
		envRepo: env.NewRepository(),
		output:  os.Stderr,
		resolver: func(logger log.Logger) selection.SourceResolver {
			downloader := selection.GotDownloader{Client: network.NewHTTPClient(logger).StandardClient()}
			return selection.NewSourceResolver(downloader, pathutil.NewPathProvider(), pathutil.NewPathModifier(), logger)
		},
		ask: func(qs []*survey.Question, response interface{}) error {
			return survey.Ask(qs, response)
		},
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
		serve: serve,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp().run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (a app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return exitUsage
	}

	var err error
	switch args[0] {
	case "submit":
		err = a.submit(ctx, args[1:])
	case "prompt":
		err = a.prompt(ctx, args[1:])
	case "serve":
		err = a.runServer(ctx, args[1:])
	case "help", "-h", "-help", "--help":
		a.usage()
		return exitOK
	default:
		fmt.Fprintf(a.output, "unknown command %q\n\n", args[0])
		a.usage()
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		return exitError
	}
}

func (a app) usage() {
	fmt.Fprintln(a.output, `Usage: idupload <command> [flags]

Commands:
  submit   upload an ID document for a student
  prompt   ask for the student ID and the file interactively
  serve    serve the upload form over HTTP

Run "idupload <command> -h" for the flags of a command.`)
}

// newFlagSet returns a flag set whose parse errors are reported as usage errors.
func (a app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.output)
	return fs
}

func (a app) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %s", errUsage, err)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.output, "unexpected arguments: %v\n", fs.Args())
		return errUsage
	}
	return nil
}

// newOrchestrator builds an orchestrator talking to the configured backend.
func (a app) newOrchestrator() (*uploadform.Orchestrator, error) {
	cfg, err := config.NewLoader(a.envRepo, a.logger).Load()
	if err != nil {
		return nil, err
	}

	client := network.NewClient(cfg.APIBaseURL, a.logger)
	return uploadform.NewOrchestrator(client, a.logger), nil
}

func (a app) logPhase(phase uploadform.Phase) {
	a.logger.Debugf("Phase: %s", phase)
}

// newForm builds a single form for the terminal front ends.
func (a app) newForm() (*uploadform.Form, error) {
	orchestrator, err := a.newOrchestrator()
	if err != nil {
		return nil, err
	}
	return uploadform.NewForm(orchestrator, uploadform.WithPhaseObserver(a.logPhase)), nil
}
