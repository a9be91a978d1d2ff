// Package templates renders the notification emails for each form type and audience.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/skybrain/formrelay/internal/domain/model"
)

//go:embed files/*.html
var files embed.FS

// Audience is who an email is addressed to.
type Audience string

// Audiences.
const (
	Admin Audience = "admin"
	User  Audience = "user"
)

// Sentinel kinds for template errors.
var (
	ErrNoTemplate = errors.New("no template")
	ErrExecute    = errors.New("execute template")
)

// Rendered is a ready-to-send email.
type Rendered struct {
	Subject string
	HTML    string
}

// Func renders a record into an email. It has no side effects.
type Func func(rec model.Record) (Rendered, error)

// data is what the template files see.
type data struct {
	Record model.Record
	// F is the concrete fields value for the record's form type.
	F     model.Fields
	Name  string
	Email string
}

type pair struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

var funcs = map[string]interface{}{
	"join": func(items []string) string { return strings.Join(items, ", ") },
	"yesno": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
	"orDash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	},
}

var registry = mustLoad()

// Name is the template file stem for a form type and audience.
func Name(ft model.FormType, aud Audience) string {
	return string(ft) + "_" + string(aud)
}

// Template is a named renderer. Name identifies it in logs.
type Template struct {
	Name   string
	Render Func
}

// For returns the template for a form type and audience.
func For(ft model.FormType, aud Audience) (Template, error) {
	name := Name(ft, aud)
	p, ok := registry[name]
	if !ok {
		return Template{}, fmt.Errorf("%w for %s", ErrNoTemplate, name)
	}
	return Template{
		Name: name,
		Render: func(rec model.Record) (Rendered, error) {
			return p.render(name, rec)
		},
	}, nil
}

// MustFor is For for pairs known to exist; it panics otherwise.
func MustFor(ft model.FormType, aud Audience) Template {
	t, err := For(ft, aud)
	if err != nil {
		panic(err)
	}
	return t
}

func (p pair) render(name string, rec model.Record) (Rendered, error) {
	d := data{Record: rec, F: rec.Fields}
	if rec.Fields != nil {
		d.Name = rec.Fields.DisplayName()
		d.Email = rec.Fields.Address()
	}

	var subj bytes.Buffer
	if err := p.subject.ExecuteTemplate(&subj, "subject", d); err != nil {
		return Rendered{}, fmt.Errorf("%w %s subject: %v", ErrExecute, name, err)
	}
	var body bytes.Buffer
	if err := p.body.ExecuteTemplate(&body, "body", d); err != nil {
		return Rendered{}, fmt.Errorf("%w %s body: %v", ErrExecute, name, err)
	}
	return Rendered{Subject: headerSafe(subj.String()), HTML: body.String()}, nil
}

// headerSafe collapses line breaks so user input cannot add mail headers.
func headerSafe(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func mustLoad() map[string]pair {
	out := make(map[string]pair)
	for _, ft := range model.OrderedForms {
		form := model.Forms[ft]
		auds := []Audience{Admin}
		if form.AutoReply {
			auds = append(auds, User)
		}
		for _, aud := range auds {
			name := Name(ft, aud)
			path := "files/" + name + ".html"
			subject := texttemplate.Must(texttemplate.New(name).Funcs(funcs).ParseFS(files, path))
			body := htmltemplate.Must(htmltemplate.New(name).Funcs(funcs).ParseFS(files, path))
			out[name] = pair{subject: subject, body: body}
		}
	}
	return out
}
