package transcribe

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"path/filepath"
)

// multipartAudio builds a multipart/form-data body with the audio under
// fileField and the given text fields. Empty field values are omitted.
func multipartAudio(fileField, filename string, data []byte, fields [][2]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if filename == "" {
		filename = "audio.wav"
	}
	part, err := writer.CreateFormFile(fileField, filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
