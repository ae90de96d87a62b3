package page

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/coolone/sitesync/internal/apperrors"
)

const (
	delimiter    = "---"
	keySeparator = "."
	listJoiner   = ", "

	// Expected number of parts when splitting a front-matter line on ":".
	frontmatterFieldCount = 2
)

// ParseError is returned when a raw document cannot be turned into a Page.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse page: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EncodeError is returned when metadata holds a value the front matter cannot express.
type EncodeError struct {
	Key    string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Key, e.Reason)
}

func (e *EncodeError) Unwrap() error {
	return apperrors.ErrUnsupportedValue
}

// Page is one editable document.
type Page struct {
	Metadata Metadata
	// Content is the markdown body, everything after the closing delimiter line.
	Content string
	// Title is the first heading of the body. It is informational and never serialized.
	Title string
}

// Parse decodes a raw markdown document with front matter.
func Parse(raw string) (*Page, error) {
	block, body, err := splitDocument(raw)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	fields, err := unflatten(parseFields(block))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	meta, err := decodeMetadata(fields)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	return &Page{
		Metadata: *meta,
		Content:  body,
		Title:    Title(body),
	}, nil
}

// Serialize encodes a page back to its document form. Keys are sorted so the
// output is deterministic.
func Serialize(p *Page) (string, error) {
	lines, err := encodeMetadata(&p.Metadata)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString(delimiter + "\n")
	builder.WriteString(strings.Join(lines, "\n"))
	builder.WriteString("\n" + delimiter + "\n")
	builder.WriteString(p.Content)
	return builder.String(), nil
}

// Bytes is Serialize for callers writing to a store.
func (p *Page) Bytes() ([]byte, error) {
	s, err := Serialize(p)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// splitDocument returns the text between the first two delimiters and the
// body that follows the line of the second one.
func splitDocument(raw string) (string, string, error) {
	first := strings.Index(raw, delimiter)
	if first < 0 {
		return "", "", apperrors.ErrMalformedDocument
	}
	rest := raw[first+len(delimiter):]

	second := strings.Index(rest, delimiter)
	if second < 0 {
		return "", "", apperrors.ErrMalformedDocument
	}

	block := rest[:second]
	after := rest[second+len(delimiter):]

	body := ""
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		body = after[nl+1:]
	}
	return block, body, nil
}

// parseFields reads "key: value" lines. Lines without a colon are ignored.
func parseFields(block string) map[string]string {
	fields := make(map[string]string)
	for line := range strings.SplitSeq(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", frontmatterFieldCount)
		if len(parts) != frontmatterFieldCount {
			continue
		}

		fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return fields
}

// unflatten turns dot-path keys into nested maps.
func unflatten(flat map[string]string) (map[string]any, error) {
	root := make(map[string]any)

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts := strings.Split(key, keySeparator)
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, exists := node[part]
			if !exists {
				next := make(map[string]any)
				node[part] = next
				node = next
				continue
			}
			next, ok := child.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s", apperrors.ErrKeyConflict, key)
			}
			node = next
		}

		leaf := parts[len(parts)-1]
		if _, exists := node[leaf]; exists {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrKeyConflict, key)
		}
		node[leaf] = flat[key]
	}

	return root, nil
}

var (
	timestampType   = reflect.TypeOf(Timestamp{})
	stringSliceType = reflect.TypeOf([]string(nil))
)

// frontmatterHook converts front-matter strings into dates and lists.
func frontmatterHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}

	s, _ := data.(string)
	switch to {
	case timestampType:
		return ParseTimestamp(s)
	case stringSliceType:
		return splitList(s), nil
	default:
		return data, nil
	}
}

func splitList(s string) []string {
	items := []string{}
	if strings.TrimSpace(s) == "" {
		return items
	}
	for item := range strings.SplitSeq(s, ",") {
		items = append(items, strings.TrimSpace(item))
	}
	return items
}

func decodeMetadata(fields map[string]any) (*Metadata, error) {
	for _, required := range []string{"description", "date"} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingField, required)
		}
	}

	kinds := 0
	for _, key := range kindKeys {
		if _, ok := fields[key]; ok {
			kinds++
		}
	}
	if kinds > 1 {
		return nil, apperrors.ErrAmbiguousContentType
	}

	var meta Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       frontmatterHook,
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &meta,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return &meta, nil
}

// encodeMetadata flattens metadata into sorted "key: value" lines.
func encodeMetadata(meta *Metadata) ([]string, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	values := make(map[string]string)
	if err := flatten(nil, tree, values); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+values[key])
	}
	return lines, nil
}

func flatten(prefix []string, tree map[string]any, out map[string]string) error {
	for name, value := range tree {
		path := append(append([]string{}, prefix...), name)
		key := strings.Join(path, keySeparator)

		switch v := value.(type) {
		case nil:
			continue
		case map[string]any:
			if err := flatten(path, v, out); err != nil {
				return err
			}
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				s, err := encodeScalar(key, item)
				if err != nil {
					return err
				}
				if strings.TrimSpace(s) == "" || strings.Contains(s, ",") {
					return &EncodeError{Key: key, Reason: fmt.Sprintf("list item %q is blank or contains a comma", s)}
				}
				items = append(items, s)
			}
			out[key] = strings.Join(items, listJoiner)
		default:
			s, err := encodeScalar(key, v)
			if err != nil {
				return err
			}
			out[key] = s
		}
	}
	return nil
}

func encodeScalar(key string, value any) (string, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return "", &EncodeError{Key: key, Reason: fmt.Sprintf("unsupported value of type %T", value)}
	}

	if strings.ContainsAny(s, "\r\n") {
		return "", &EncodeError{Key: key, Reason: "value spans several lines"}
	}
	if strings.Contains(s, delimiter) {
		return "", &EncodeError{Key: key, Reason: "value contains the front-matter delimiter"}
	}
	// Parse trims values, so surrounding whitespace would not survive.
	if s != strings.TrimSpace(s) {
		return "", &EncodeError{Key: key, Reason: fmt.Sprintf("value %q has leading or trailing whitespace", s)}
	}
	return s, nil
}
