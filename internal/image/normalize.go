package image

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/dmorgan81/painterbot/internal/config"
	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/samber/lo"
)

// Raw is a successful backend reply, kept both as bytes and as generic JSON.
type Raw struct {
	Body  []byte
	Value any
}

// Strategy pulls an image out of one response shape. Extract must not have side effects.
type Strategy struct {
	Name    string
	Extract func(Raw) (Result, bool)
}

// Normalizer tries its strategies in order and keeps the first hit.
type Normalizer struct {
	fields     config.Fields
	strategies []Strategy
}

func NewNormalizer(fields config.Fields) *Normalizer {
	n := &Normalizer{fields: fields}
	n.strategies = []Strategy{
		{Name: "typed results", Extract: typedResults},
		{Name: "keyed results", Extract: n.keyedResults},
		{Name: "top-level object", Extract: n.topLevel},
		{Name: "url results", Extract: n.urlResults},
	}
	return n
}

func (n *Normalizer) Strategies() []Strategy {
	return n.strategies
}

// Normalize parses body and returns a validated result.
func (n *Normalizer) Normalize(body []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return Result{}, &failure.Error{
			Kind:    failure.ResponseShapeUnrecognized,
			Message: "response is not JSON",
			Cause:   err,
		}
	}

	raw := Raw{Body: body, Value: value}
	for _, s := range n.strategies {
		res, ok := s.Extract(raw)
		if !ok {
			continue
		}
		if res.Encoding == Base64 {
			if err := validateBase64(res.Data); err != nil {
				return Result{}, err
			}
		}
		return res, nil
	}

	return Result{}, &failure.Error{
		Kind:    failure.ResponseShapeUnrecognized,
		Message: "no image data in response",
		Present: n.present(value),
	}
}

type typedImage struct {
	B64JSON  string `json:"b64_json"`
	B64Image string `json:"b64_image"`
}

type typedResponse struct {
	Data   []typedImage `json:"data"`
	Output struct {
		Results []typedImage `json:"results"`
	} `json:"output"`
}

// typedResults reads the OpenAI-compatible and DashScope layouts, newer field name first. It
// ignores the configured field lists.
func typedResults(raw Raw) (Result, bool) {
	var resp typedResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return Result{}, false
	}
	for _, img := range append(resp.Data, resp.Output.Results...) {
		if v := lo.Ternary(img.B64JSON != "", img.B64JSON, img.B64Image); v != "" {
			return inline(v), true
		}
	}
	return Result{}, false
}

func (n *Normalizer) keyedResults(raw Raw) (Result, bool) {
	for _, el := range n.elements(raw.Value) {
		if v, ok := firstString(el, n.fields.Base64); ok {
			return inline(v), true
		}
	}
	return Result{}, false
}

func (n *Normalizer) topLevel(raw Raw) (Result, bool) {
	obj, ok := raw.Value.(map[string]any)
	if !ok {
		return Result{}, false
	}
	if v, ok := firstString(obj, n.fields.Base64); ok {
		return inline(v), true
	}
	return Result{}, false
}

func (n *Normalizer) urlResults(raw Raw) (Result, bool) {
	for _, el := range n.elements(raw.Value) {
		v, ok := firstString(el, n.fields.URL)
		if !ok {
			continue
		}
		if u, err := url.Parse(v); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return Result{Encoding: URL, Data: v, MimeType: MimeType}, true
		}
	}
	return Result{}, false
}

// elements returns every object found under any configured results path.
func (n *Normalizer) elements(value any) []map[string]any {
	var out []map[string]any
	for _, path := range n.fields.Results {
		list, ok := lookup(value, path).([]any)
		if !ok {
			continue
		}
		for _, el := range list {
			if obj, ok := el.(map[string]any); ok {
				out = append(out, obj)
			}
		}
	}
	return out
}

// present describes the response for diagnosis: top-level keys plus the keys of the first
// element of each results list that exists.
func (n *Normalizer) present(value any) []string {
	obj, ok := value.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("top-level %T", value)}
	}
	keys := lo.Keys(obj)
	sort.Strings(keys)
	for _, path := range n.fields.Results {
		list, ok := lookup(value, path).([]any)
		if !ok {
			continue
		}
		if len(list) == 0 {
			keys = append(keys, path+"[] (empty)")
			continue
		}
		el, ok := list[0].(map[string]any)
		if !ok {
			keys = append(keys, fmt.Sprintf("%s[0] %T", path, list[0]))
			continue
		}
		elKeys := lo.Keys(el)
		sort.Strings(elKeys)
		keys = append(keys, lo.Map(elKeys, func(k string, _ int) string {
			return path + "[0]." + k
		})...)
	}
	return keys
}

// lookup walks a dotted path through nested objects.
func lookup(value any, path string) any {
	for _, part := range strings.Split(path, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = obj[part]
	}
	return value
}

func firstString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func inline(data string) Result {
	return Result{Encoding: Base64, Data: data, MimeType: MimeType}
}

var base64Grammar = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

func validateBase64(data string) error {
	invalid := func(msg string, cause error) error {
		return failure.New(failure.InvalidPayload, msg, cause)
	}
	if !base64Grammar.MatchString(data) || len(data)%4 != 0 {
		return invalid("payload is not base64", nil)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return invalid("payload does not decode", err)
	}
	if len(decoded) == 0 {
		return invalid("payload decodes to nothing", nil)
	}
	return nil
}
