package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/trixmart/go-idupload/selection"
)

var errAborted = errors.New("aborted")

type promptAnswers struct {
	StudentID string `survey:"studentId"`
	File      string `survey:"file"`
}

func (a app) prompt(ctx context.Context, args []string) error {
	fs := a.newFlagSet("prompt")
	verbose := fs.Bool("verbose", false, "Enable debug logs")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	a.logger.EnableDebugLog(*verbose)

	if !a.isTerminal() {
		fmt.Fprintln(a.output, "prompt needs an interactive terminal, use submit instead")
		return errUsage
	}

	form, err := a.newForm()
	if err != nil {
		a.logger.Errorf("%s", err)
		return err
	}

	var answers promptAnswers
	if err := a.ask(promptQuestions(), &answers); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			a.logger.Warnf("Aborted")
			return errAborted
		}
		return err
	}

	return a.upload(ctx, form, answers.StudentID, answers.File)
}

func promptQuestions() []*survey.Question {
	return []*survey.Question{
		{
			Name:     "studentId",
			Prompt:   &survey.Input{Message: "Student ID:"},
			Validate: survey.ComposeValidators(survey.Required, validateStudentID),
		},
		{
			Name: "file",
			Prompt: &survey.Input{
				Message: "ID document:",
				Help:    selection.Hint(),
			},
			Validate: survey.ComposeValidators(survey.Required, validateFileName),
		},
	}
}

func validateStudentID(ans interface{}) error {
	s, _ := ans.(string)
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return errors.New("student ID must be a positive number")
	}
	return nil
}

func validateFileName(ans interface{}) error {
	s, _ := ans.(string)
	if err := selection.CheckName(strings.TrimSpace(s)); err != nil {
		return errors.New(selection.RejectionMessage(err))
	}
	return nil
}
