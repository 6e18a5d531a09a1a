// internal/network/body.go
package network

import (
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// MaxBodySize caps how much of any single response is read into memory.
const MaxBodySize = 8 << 20

// ReadBody reads and closes resp.Body, bounded by MaxBodySize.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// ToUTF8 transcodes an HTML document to UTF-8. The charset is taken from
// contentType, a BOM, or a meta tag in that order; bodies that are already
// valid UTF-8 are returned untouched when the declaration is not certain.
func ToUTF8(body []byte, contentType string) ([]byte, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(body)) {
		return body, nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s document: %w", name, err)
	}
	return out, nil
}
