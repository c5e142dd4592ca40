package endpoint

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"
)

func render(t *testing.T, r Renderer, preset map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	for k, v := range preset {
		rec.Header().Set(k, v)
	}
	if err := r.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	return rec
}

func TestRenderers(t *testing.T) {
	tmpl := template.Must(template.New("page").Parse(`<p>{{.}}</p>{{define "other"}}<b>{{.}}</b>{{end}}`))

	tests := []struct {
		name       string
		renderer   Renderer
		preset     map[string]string
		wantStatus int
		wantCT     string
		wantBody   string
	}{
		{"string", &StringRenderer{Body: "hi"}, nil, 200, "text/plain; charset=utf-8", "hi"},
		{"string status and type", &StringRenderer{Status: 201, Body: "<x/>", ContentType: "text/xml"}, nil, 201, "text/xml", "<x/>"},
		{"string keeps content type", &StringRenderer{Body: "hi"}, map[string]string{"Content-Type": "text/csv"}, 200, "text/csv", "hi"},
		{"bytes", &BytesRenderer{ContentType: "text/xml; charset=utf-8", Body: []byte("<a/>")}, nil, 200, "text/xml; charset=utf-8", "<a/>"},
		{"bytes overrides content type", &BytesRenderer{ContentType: "application/json", Body: []byte("{}")}, map[string]string{"Content-Type": "text/csv"}, 200, "application/json", "{}"},
		{"no content", &NoContentRenderer{}, nil, 204, "", ""},
		{"no content status", &NoContentRenderer{Status: http.StatusAccepted}, nil, 202, "", ""},
		{"json", &JSONRenderer{Value: map[string]string{"a": "<b>"}}, nil, 200, "application/json", "{\"a\":\"<b>\"}\n"},
		{"json status", &JSONRenderer{Status: 503, Value: nil}, nil, 503, "application/json", "null\n"},
		{"html template", &HTMLTemplateRenderer{Template: tmpl, Values: "<x>"}, nil, 200, "text/html; charset=utf-8", "<p>&lt;x&gt;</p>"},
		{"html named template", &HTMLTemplateRenderer{Template: tmpl, Name: "other", Values: "y"}, nil, 200, "text/html; charset=utf-8", "<b>y</b>"},
		{"html keeps content type", &HTMLTemplateRenderer{Template: tmpl, Values: "z"}, map[string]string{"Content-Type": "application/xhtml+xml"}, 200, "application/xhtml+xml", "<p>z</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := render(t, tt.renderer, tt.preset)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantCT {
				t.Errorf("expected Content-Type %q, got %q", tt.wantCT, got)
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, got)
			}
		})
	}
}

func TestJSONRenderer_EncodeError(t *testing.T) {
	err := (&JSONRenderer{Value: func() {}}).Render(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	var ute *json.UnsupportedTypeError
	if err == nil {
		t.Fatal("expected an encoding error")
	}
	if _, ok := err.(*json.UnsupportedTypeError); !ok {
		t.Errorf("expected %T, got %T", ute, err)
	}
}

func TestHTMLTemplateRenderer_Errors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := (&HTMLTemplateRenderer{}).Render(httptest.NewRecorder(), req); err == nil {
		t.Error("expected error for nil template")
	}

	tmpl := template.Must(template.New("bad").Parse(`{{.Missing.Field}}`))
	rec := httptest.NewRecorder()
	if err := (&HTMLTemplateRenderer{Template: tmpl, Values: struct{}{}}).Render(rec, req); err == nil {
		t.Error("expected execution error")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected nothing written on execution error, got %q", rec.Body.String())
	}
}
