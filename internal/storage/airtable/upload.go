package airtable

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"
)

// defaultContentURL is the attachment ingestion host, separate from the
// regular REST API host.
const defaultContentURL = "https://content.airtable.com"

// attachmentUploader pushes file content into an attachment column through
// the content upload endpoint, which the record API client does not cover.
type attachmentUploader struct {
	apiKey  string
	baseID  string
	baseURL string
	client  *http.Client
}

func newAttachmentUploader(apiKey, baseID string) *attachmentUploader {
	return &attachmentUploader{
		apiKey:  apiKey,
		baseID:  baseID,
		baseURL: defaultContentURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadRequest struct {
	ContentType string `json:"contentType"`
	File        string `json:"file"`
	Filename    string `json:"filename"`
}

// Upload attaches content to one record's attachment field. The payload is
// base64 in a JSON body, which caps practical file size well below the
// endpoint's 5 MB limit for rendered label PDFs.
func (u *attachmentUploader) Upload(ctx context.Context, recordID, field, filename string, content []byte) error {
	body, err := json.Marshal(uploadRequest{
		ContentType: "application/pdf",
		File:        base64.StdEncoding.EncodeToString(content),
		Filename:    filename,
	})
	if err != nil {
		return fmt.Errorf("encode upload payload: %w", err)
	}

	url := fmt.Sprintf("%s/v0/%s/%s/%s/uploadAttachment", u.baseURL, u.baseID, recordID, neturl.PathEscape(field))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("upload attachment: status %d: %s", res.StatusCode, msg)
	}
	return nil
}
