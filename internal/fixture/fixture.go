// Package fixture implements the on-disk fixture library: the template
// format, the store that lists and loads fixture files, the dispatcher that
// replays them and the serializer that records new ones.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"replay-proxy/internal/reqctx"
)

// Fixture is a loadable unit that can answer a request.
type Fixture interface {
	// Matches reports whether the fixture answers the given request.
	// query is the raw query string without the leading '?'.
	Matches(method, path, query string) bool
	// Respond writes the full response and ends it.
	Respond(rc *reqctx.Context, res *reqctx.Response) error
}

// Template is the fixture file format: an exact-match predicate plus a
// response template.
type Template struct {
	Request  Predicate   `json:"request"`
	Response Reply       `json:"response"`
	Recorded *Provenance `json:"recorded,omitempty"`

	name string
}

// Predicate selects requests by exact method, path and raw query.
type Predicate struct {
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path"   yaml:"path"`
	Query  string `json:"query"  yaml:"query"`
}

// Reply is the response template. At most one of Body, BodyText and
// BodyBase64 is set.
type Reply struct {
	Status     int             `json:"status"`
	Headers    Headers         `json:"headers,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	BodyText   *string         `json:"bodyText,omitempty"`
	BodyBase64 []byte          `json:"bodyBase64,omitempty"`
}

// Provenance records where a fixture came from. It never affects matching.
type Provenance struct {
	Index      uint64    `json:"index"      yaml:"index"`
	At         time.Time `json:"at"         yaml:"at"`
	Upstream   string    `json:"upstream"   yaml:"upstream"`
	DurationMS int64     `json:"durationMs" yaml:"durationMs"`
}

// Headers is a header mapping. In files each value may be a single string
// or a list of strings.
type Headers map[string][]string

// UnmarshalJSON accepts {"K": "v"} as well as {"K": ["v1", "v2"]}.
func (h *Headers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Headers, len(raw))
	for k, v := range raw {
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			out[k] = []string{one}
			continue
		}
		var many []string
		if err := json.Unmarshal(v, &many); err != nil {
			return fmt.Errorf("header %q: want a string or a list of strings", k)
		}
		out[k] = many
	}
	*h = out
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (h *Headers) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	out := make(Headers, len(raw))
	for k, v := range raw {
		if v.Kind == yaml.ScalarNode {
			out[k] = []string{v.Value}
			continue
		}
		var many []string
		if err := v.Decode(&many); err != nil {
			return fmt.Errorf("header %q: want a string or a list of strings", k)
		}
		out[k] = many
	}
	*h = out
	return nil
}

// Name returns the file name the template was loaded from or will be saved as.
func (t *Template) Name() string {
	return t.name
}

// Matches implements Fixture.
func (t *Template) Matches(method, path, query string) bool {
	return t.Request.Method == method && t.Request.Path == path && t.Request.Query == query
}

// Respond implements Fixture.
func (t *Template) Respond(_ *reqctx.Context, res *reqctx.Response) error {
	body, isJSON, err := t.Response.body()
	if err != nil {
		return fmt.Errorf("fixture %s: %w", t.name, err)
	}

	status := t.Response.Status
	if status == 0 {
		status = http.StatusOK
	}
	res.Status(status)
	for k, vs := range t.Response.Headers {
		for _, v := range vs {
			res.Add(k, v)
		}
	}
	if bodyAllowed(status) {
		res.Set("Content-Length", strconv.Itoa(len(body)))
		switch {
		case isJSON:
			res.JSONBytes(body)
		case len(body) > 0:
			res.Write(body)
		}
	}
	return res.End()
}

// body returns the bytes to send. JSON bodies are stored indented and sent
// compact.
func (r *Reply) body() ([]byte, bool, error) {
	switch {
	case len(r.Body) > 0:
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.Body); err != nil {
			return nil, false, fmt.Errorf("compact body: %w", err)
		}
		return buf.Bytes(), true, nil
	case r.BodyText != nil:
		return []byte(*r.BodyText), false, nil
	default:
		return r.BodyBase64, false, nil
	}
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// decodeJSON parses a JSON fixture file.
func decodeJSON(name string, data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", name, err)
	}
	t.name = name
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// yamlTemplate mirrors Template for hand-written YAML fixtures, where the
// body is any YAML value that converts to JSON.
type yamlTemplate struct {
	Request  Predicate `yaml:"request"`
	Response struct {
		Status   int     `yaml:"status"`
		Headers  Headers `yaml:"headers"`
		Body     any     `yaml:"body"`
		BodyText *string `yaml:"bodyText"`
	} `yaml:"response"`
	Recorded *Provenance `yaml:"recorded"`
}

// decodeYAML parses a YAML fixture file.
func decodeYAML(name string, data []byte) (*Template, error) {
	var y yamlTemplate
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", name, err)
	}
	t := &Template{
		Request: y.Request,
		Response: Reply{
			Status:   y.Response.Status,
			Headers:  y.Response.Headers,
			BodyText: y.Response.BodyText,
		},
		Recorded: y.Recorded,
		name:     name,
	}
	if y.Response.Body != nil {
		b, err := json.Marshal(y.Response.Body)
		if err != nil {
			return nil, fmt.Errorf("parse fixture %s: body is not representable as JSON: %w", name, err)
		}
		t.Response.Body = b
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Template) validate() error {
	if t.Request.Method == "" {
		return fmt.Errorf("fixture %s: request.method is required", t.name)
	}
	if t.Request.Path == "" {
		return fmt.Errorf("fixture %s: request.path is required", t.name)
	}
	n := 0
	if len(t.Response.Body) > 0 {
		n++
	}
	if t.Response.BodyText != nil {
		n++
	}
	if len(t.Response.BodyBase64) > 0 {
		n++
	}
	if n > 1 {
		return fmt.Errorf("fixture %s: set only one of body, bodyText and bodyBase64", t.name)
	}
	return nil
}
