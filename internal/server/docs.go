package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/rpc"
)

// procedureDoc is one row of the docs page.
type procedureDoc struct {
	Name      string
	Signature string
	Params    string
	Doc       string
	Protocols []string
}

// describe documents the procedures of reg, or only those named in names
// when it is not empty.
func describe(reg *rpc.Registry, names ...string) []procedureDoc {
	if len(names) == 0 {
		names = reg.Names()
	}
	var docs []procedureDoc
	for _, name := range names {
		p, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		sig := rpc.Signature(p)
		d := procedureDoc{
			Name:      name,
			Signature: sig[0] + " " + name + "(" + strings.Join(sig[1:], ", ") + ")",
			Params:    strings.Join(p.ParamNames(), ", "),
			Doc:       p.Doc,
		}
		for _, protocol := range []rpc.Protocol{rpc.JSONRPC, rpc.XMLRPC} {
			if p.Accepts(protocol) {
				d.Protocols = append(d.Protocols, protocol.String())
			}
		}
		docs = append(docs, d)
	}
	return docs
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Service}} procedures</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    code { font-size: 0.9rem; }
  </style>
</head>
<body>
  <h1>{{.Service}}</h1>
  <p>POST JSON-RPC 2.0 requests to <code>/jsonrpc</code>, XML-RPC calls to <code>/xmlrpc</code>, or either to <code>/rpc</code>.</p>
  {{if not .Procedures}}
  <p>No procedures registered.</p>
  {{else}}
  <table>
    <thead>
      <tr><th>Procedure</th><th>Signature</th><th>Parameters</th><th>Protocols</th><th>Description</th></tr>
    </thead>
    <tbody>
      {{range .Procedures}}
      <tr>
        <td><code>{{.Name}}</code></td>
        <td><code>{{.Signature}}</code></td>
        <td>{{.Params}}</td>
        <td>{{range $i, $p := .Protocols}}{{if $i}}, {{end}}{{$p}}{{end}}</td>
        <td>{{.Doc}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>
`))

type docsParams struct {
	Methods []string `query:"method"`
}

// docs renders the procedure table. Repeated method query parameters
// restrict it to those procedures.
func (s *Server) docs(w http.ResponseWriter, r *http.Request, params docsParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
	}
	return &endpoint.HTMLTemplateRenderer{
		Template: docsTemplate,
		Values: struct {
			Service    string
			Procedures []procedureDoc
		}{s.cfg.ServiceName, describe(s.dispatcher.Registry(), params.Methods...)},
	}, nil
}

type methodDocParams struct {
	Name string `path:"method"`
}

// methodDoc answers with the signature and help text of one procedure.
func (s *Server) methodDoc(w http.ResponseWriter, r *http.Request, params methodDocParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
	}
	docs := describe(s.dispatcher.Registry(), params.Name)
	if len(docs) == 0 {
		return nil, endpoint.Error(http.StatusNotFound, "no such procedure: "+params.Name, nil)
	}
	d := docs[0]
	body := d.Signature + "\n"
	if d.Doc != "" {
		body += "\n" + d.Doc + "\n"
	}
	return &endpoint.StringRenderer{Body: body}, nil
}
