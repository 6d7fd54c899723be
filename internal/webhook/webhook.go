package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"codeberg.org/crawlsearch/server/internal/document"
)

// Sign returns the header value a sender computes for body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against the HMAC-SHA256 of the raw body. An empty secret
// disables verification.
func Verify(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}

	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok || sig == "" {
		return fmt.Errorf("%w: missing or malformed %s header", ErrInvalidSignature, SignatureHeader)
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}

	return nil
}

// Decode parses a delivery. data may be a single page or a list of pages.
func Decode(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}

	event := &Event{
		Type:     raw.Type,
		ID:       raw.ID,
		Success:  raw.Success,
		Metadata: raw.Metadata,
		Data:     []document.CrawledPage{},
	}

	if raw.Error != nil {
		event.Error = *raw.Error
	}

	data := bytes.TrimSpace(raw.Data)

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &event.Data); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrInvalidPayload, err)
		}
	default:
		var page document.CrawledPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrInvalidPayload, err)
		}
		event.Data = append(event.Data, page)
	}

	return event, nil
}
