package endpoint

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
)

// HTMLTemplateRenderer executes an html/template with Values. Output is
// buffered so an execution error can still turn into an error response.
// Name selects a named template; otherwise the root template runs.
type HTMLTemplateRenderer struct {
	Status   int
	Template *template.Template
	Name     string
	Values   any
}

func (hr *HTMLTemplateRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if hr.Template == nil {
		return errors.New("endpoint: nil html/template")
	}
	var buf bytes.Buffer
	var err error
	if hr.Name != "" {
		err = hr.Template.ExecuteTemplate(&buf, hr.Name, hr.Values)
	} else {
		err = hr.Template.Execute(&buf, hr.Values)
	}
	if err != nil {
		return err
	}
	setContentType(w, "text/html; charset=utf-8")
	w.WriteHeader(statusOr(hr.Status, http.StatusOK))
	_, err = buf.WriteTo(w)
	return err
}
