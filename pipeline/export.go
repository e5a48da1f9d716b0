package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// GetOutputPathForStage derives a stage-specific output filename from the
// run's base output path by inserting the stage name (and optional suffix)
// before the extension. Returns "" when no base output path is configured.
func (c *Context) GetOutputPathForStage(stage, suffix string) string {
	if c.OutputPath == "" {
		return ""
	}

	ext := filepath.Ext(c.OutputPath)
	base := strings.TrimSuffix(c.OutputPath, ext)

	if suffix != "" {
		return fmt.Sprintf("%s_%s_%s%s", base, stage, suffix, ext)
	}
	return fmt.Sprintf("%s_%s%s", base, stage, ext)
}

// ExportResults serializes data to disk at the stage-derived path. Formats:
//
//   - "jsonl": one JSON object per line; a non-slice value becomes a
//     single-line file and logs a warning
//   - "json": a single document, indented when the context's Pretty flag
//     is set
//   - anything else: the value's string rendering
//
// Export failures are recorded via AddError and never abort the pipeline.
func (c *Context) ExportResults(data any, stage, format string) {
	if c.OutputPath == "" {
		return
	}

	path := c.OutputPath
	if stage != "" {
		ext := filepath.Ext(c.OutputPath)
		if format != "" {
			ext = "." + format
		}
		base := strings.TrimSuffix(c.OutputPath, filepath.Ext(c.OutputPath))
		path = fmt.Sprintf("%s_%s%s", base, stage, ext)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			c.AddError("export", fmt.Sprintf("creating output directory %s: %v", dir, err), nil)
			return
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "jsonl":
		c.writeJSONL(&buf, data)
	case "json", "":
		buf.Write(c.encodeJSON(data, c.Pretty))
		buf.WriteByte('\n')
	default:
		fmt.Fprintf(&buf, "%v\n", data)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		c.AddError("export", fmt.Sprintf("writing %s: %v", path, err), nil)
		return
	}

	c.logger.Info("exported results", "path", path, "format", format, "items", countItems(data))
}

// writeJSONL renders data as one JSON object per line. Slices fan out one
// line per element; anything else is written as a single line with a
// warning, since callers asking for jsonl usually hold a batch.
func (c *Context) writeJSONL(buf *bytes.Buffer, data any) {
	rv := reflect.ValueOf(data)
	if data == nil || rv.Kind() != reflect.Slice {
		c.AddWarning("export", "jsonl export of non-list data, writing single line", nil)
		buf.Write(c.encodeJSON(data, false))
		buf.WriteByte('\n')
		return
	}

	for i := 0; i < rv.Len(); i++ {
		buf.Write(c.encodeJSON(rv.Index(i).Interface(), false))
		buf.WriteByte('\n')
	}
}

// encodeJSON marshals a value, falling back to its string rendering as a
// JSON string when the value is not serializable. Values exposing their own
// json.Marshaler implementation are serialized through it.
func (c *Context) encodeJSON(v any, pretty bool) []byte {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err == nil {
		return data
	}

	fallback, ferr := json.Marshal(fmt.Sprintf("%v", v))
	if ferr != nil {
		return []byte(`""`)
	}
	return fallback
}
