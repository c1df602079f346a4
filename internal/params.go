package internal

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
)

// Params holds the form parameters of one API call. Slice values are sent as
// repeated "name[]" keys; nil values are omitted.
type Params map[string]any

// File is a multipart attachment.
type File struct {
	// FileName is reported in the Content-Disposition header.
	FileName string
	// ContentType defaults to application/octet-stream.
	ContentType string
	// Data holds the file contents. It is buffered so that throttled calls can be resent.
	Data []byte
}

// EncodeParams flattens params into url.Values. Unsupported value types are
// reported as an IllegalArgumentError before anything is sent.
func EncodeParams(params Params) (url.Values, error) {
	values := url.Values{}
	for key, raw := range params {
		if key == "" {
			return nil, &pkgerrs.IllegalArgumentError{Message: "parameter name cannot be empty"}
		}

		scalars, isList, err := flattenValue(raw)
		if err != nil {
			return nil, &pkgerrs.IllegalArgumentError{Argument: key, Message: err.Error()}
		}
		if scalars == nil {
			continue
		}

		name := key
		if isList && !strings.HasSuffix(name, "[]") {
			name += "[]"
		}
		for _, s := range scalars {
			values.Add(name, s)
		}
	}
	return values, nil
}

// flattenValue returns the textual form(s) of v. A nil slice result means the
// parameter is omitted; isList reports whether repeated-key encoding applies.
func flattenValue(v any) (scalars []string, isList bool, err error) {
	switch val := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		return []string{val}, false, nil
	case *string:
		if val == nil {
			return nil, false, nil
		}
		return []string{*val}, false, nil
	case bool:
		return []string{strconv.FormatBool(val)}, false, nil
	case *bool:
		if val == nil {
			return nil, false, nil
		}
		return []string{strconv.FormatBool(*val)}, false, nil
	case int:
		return []string{strconv.Itoa(val)}, false, nil
	case *int:
		if val == nil {
			return nil, false, nil
		}
		return []string{strconv.Itoa(*val)}, false, nil
	case int64:
		return []string{strconv.FormatInt(val, 10)}, false, nil
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}, false, nil
	case time.Time:
		if val.IsZero() {
			return nil, false, nil
		}
		return []string{val.UTC().Format(time.RFC3339)}, false, nil
	case *time.Time:
		if val == nil || val.IsZero() {
			return nil, false, nil
		}
		return []string{val.UTC().Format(time.RFC3339)}, false, nil
	case time.Duration:
		return []string{strconv.FormatInt(int64(val/time.Second), 10)}, false, nil
	case fmt.Stringer:
		return []string{val.String()}, false, nil
	case []string:
		return append([]string{}, val...), true, nil
	case []int:
		out := make([]string, 0, len(val))
		for _, n := range val {
			out = append(out, strconv.Itoa(n))
		}
		return out, true, nil
	case []int64:
		out := make([]string, 0, len(val))
		for _, n := range val {
			out = append(out, strconv.FormatInt(n, 10))
		}
		return out, true, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, nested, err := flattenValue(item)
			if err != nil {
				return nil, false, err
			}
			if nested {
				return nil, false, fmt.Errorf("nested lists are not supported")
			}
			out = append(out, s...)
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported parameter type %T", v)
	}
}

// encodeBody builds the request body for a non-query call. Without files the
// body is form-encoded; with files it is multipart/form-data.
func encodeBody(values url.Values, files map[string]File) (body []byte, contentType string, err error) {
	if len(files) == 0 {
		return []byte(values.Encode()), "application/x-www-form-urlencoded", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range values[k] {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}

	fields := make([]string, 0, len(files))
	for k := range files {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, field := range fields {
		f := files[field]
		if len(f.Data) == 0 {
			return nil, "", &pkgerrs.IllegalArgumentError{Argument: field, Message: "file attachment is empty"}
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fileName := f.FileName
		if fileName == "" {
			fileName = field
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, bytes.NewReader(f.Data)); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
