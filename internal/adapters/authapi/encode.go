package authapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
)

const maxAttachmentBytes = 5 << 20

func encodeJSON(v any) ([]byte, string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request")
	}
	return b, "application/json", nil
}

// encodeMultipart writes the JSON fields of v as form values followed by the attachment.
func encodeMultipart(v any, att domainauth.Attachment) ([]byte, string, error) {
	if len(att.Data) == 0 {
		return nil, "", apperrors.ValidationField("avatar", "attachment is empty")
	}
	if len(att.Data) > maxAttachmentBytes {
		return nil, "", apperrors.ValidationField("avatar", "attachment must be 5 MB or smaller")
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request")
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range keys {
		if err := w.WriteField(k, fmt.Sprint(fields[k])); err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode form field")
		}
	}

	fieldName := att.FieldName
	if fieldName == "" {
		fieldName = "avatar"
	}
	fileName := att.FileName
	if fileName == "" {
		fileName = fieldName
	}
	contentType := att.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(att.Data)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(fieldName), escapeQuotes(fileName)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode attachment")
	}
	if _, err := part.Write(att.Data); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode attachment")
	}
	if err := w.Close(); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode form")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
