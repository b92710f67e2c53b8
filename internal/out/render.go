package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ggonzalez94/tradeagent/internal/config"
	"github.com/ggonzalez94/tradeagent/internal/model"
)

// PlainTexter is implemented by data that has a natural prose rendering.
type PlainTexter interface {
	PlainText() string
}

// Tabular is implemented by list data that renders as a table in plain mode.
type Tabular interface {
	TableHeader() []string
	TableRows() [][]string
}

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	projected := len(settings.SelectFields) > 0
	if projected {
		data = project(data, settings.SelectFields)
	}

	if settings.OutputMode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if settings.ResultsOnly {
			return enc.Encode(data)
		}
		env.Data = data
		return enc.Encode(env)
	}

	if !projected && env.Error == nil {
		done, err := renderRich(w, data)
		if err != nil {
			return err
		}
		if done {
			if settings.ResultsOnly {
				return nil
			}
			return renderWarnings(w, env.Warnings)
		}
	}

	if settings.ResultsOnly {
		return renderPlain(w, data)
	}
	plain := map[string]any{
		"success":  env.Success,
		"data":     data,
		"warnings": env.Warnings,
		"meta":     env.Meta,
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return renderPlain(w, plain)
}

// renderRich handles data that knows how to present itself.
func renderRich(w io.Writer, data any) (bool, error) {
	switch v := data.(type) {
	case PlainTexter:
		_, err := io.WriteString(w, v.PlainText())
		return true, err
	case Tabular:
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		header := make(table.Row, 0, len(v.TableHeader()))
		for _, h := range v.TableHeader() {
			header = append(header, h)
		}
		t.AppendHeader(header)
		for _, r := range v.TableRows() {
			row := make(table.Row, 0, len(r))
			for _, cell := range r {
				row = append(row, cell)
			}
			t.AppendRow(row)
		}
		_, err := fmt.Fprintln(w, t.Render())
		return true, err
	}
	return false, nil
}

func renderWarnings(w io.Writer, warnings []string) error {
	for _, msg := range warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", msg); err != nil {
			return err
		}
	}
	return nil
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			item := normalizeValue(v.Index(i).Interface())
			line, err := toLine(item)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		return nil
	default:
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

// projectMap keeps the selected fields. Dotted names reach into nested
// objects, so "response.message" selects the chat reply.
func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, f); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, t[k]))
		}
		return strings.Join(parts, " "), nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}
