package main

import (
	"context"
	"strings"

	"github.com/trixmart/go-idupload/selection"
	"github.com/trixmart/go-idupload/uploadform"
)

func (a app) submit(ctx context.Context, args []string) error {
	fs := a.newFlagSet("submit")
	studentID := fs.String("student-id", "", "Numeric student ID")
	source := fs.String("file", "", "Path, file:// or http(s):// URL of the ID document ("+strings.Join(selection.AllowedExtensions, ", ")+")")
	verbose := fs.Bool("verbose", false, "Enable debug logs")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	a.logger.EnableDebugLog(*verbose)

	form, err := a.newForm()
	if err != nil {
		a.logger.Errorf("%s", err)
		return err
	}

	return a.upload(ctx, form, *studentID, *source)
}

// upload selects the file behind source and submits the form.
// An empty source submits without a file, which fails validation.
func (a app) upload(ctx context.Context, form *uploadform.Form, studentID, source string) error {
	form.SetStudentID(studentID)

	if strings.TrimSpace(source) != "" {
		if err := a.selectFile(ctx, form, source); err != nil {
			return err
		}
		a.logger.Printf("Selected %s (%s, %s)", form.State().File.Name, form.State().File.ContentType, selection.HumanSize(form.State().File.Size))
	}

	outcome := form.Submit(ctx)
	if !outcome.Success {
		a.logger.Errorf("%s", outcome.Message)
		return outcome.Err
	}

	a.logger.Donef("%s", outcome.Message)
	a.logger.Printf("File key: %s", outcome.FileKey)
	return nil
}

func (a app) selectFile(ctx context.Context, form *uploadform.Form, source string) error {
	pth, cleanup, err := a.resolver(a.logger).LocalPath(ctx, source)
	defer cleanup()
	if err != nil {
		return a.reject(form, err)
	}

	file, err := selection.Open(pth)
	if err != nil {
		return a.reject(form, err)
	}

	if err := form.SelectFile(file.Name, file.Bytes()); err != nil {
		a.logger.Errorf("%s", form.State().Message.Text)
		return err
	}
	return nil
}

func (a app) reject(form *uploadform.Form, err error) error {
	a.logger.Debugf("%s", err)
	rejectErr := form.RejectFile(err)
	a.logger.Errorf("%s", form.State().Message.Text)
	return rejectErr
}
