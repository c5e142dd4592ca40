package endpoint

import "net/http"

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}

// setContentType sets the Content-Type header unless an outer renderer
// already did.
func setContentType(w http.ResponseWriter, contentType string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", contentType)
	}
}

// StringRenderer writes Body as text. ContentType defaults to
// "text/plain; charset=utf-8" and Status to 200.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	ct := sr.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	setContentType(w, ct)
	w.WriteHeader(statusOr(sr.Status, http.StatusOK))
	_, err := w.Write([]byte(sr.Body))
	return err
}

// BytesRenderer writes a pre-encoded body with its content type.
type BytesRenderer struct {
	Status      int
	ContentType string
	Body        []byte
}

func (br *BytesRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", br.ContentType)
	w.WriteHeader(statusOr(br.Status, http.StatusOK))
	_, err := w.Write(br.Body)
	return err
}

// NoContentRenderer writes a status with no body, 204 by default.
type NoContentRenderer struct {
	Status int
}

func (nr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(statusOr(nr.Status, http.StatusNoContent))
	return nil
}
