// internal/network/compression.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	emptyReader = strings.NewReader("")
)

// CompressionMiddleware advertises gzip, deflate and brotli to the server
// and transparently decodes whichever one comes back.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, falling back to http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder, hands pooled readers back, and closes the
// body it was layered on.
type decodedBody struct {
	io.ReadCloser
	inner   io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(b.ReadCloser.Close(), b.inner.Close())
}

// DecompressResponse replaces resp.Body with a decoding reader for every
// layer named in Content-Encoding, undoing them last-applied first. On
// error the body may be partially consumed and must be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))
		if encoding == "identity" || encoding == "" {
			continue
		}
		reader, release, err := decoderFor(encoding, resp.Body)
		if err != nil {
			return err
		}
		resp.Body = &decodedBody{ReadCloser: reader, inner: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

func decoderFor(encoding string, body io.Reader) (io.ReadCloser, func(), error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(body); err != nil {
			gzipReaderPool.Put(zr)
			return nil, nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		return zr, func() {
			_ = zr.Reset(emptyReader)
			gzipReaderPool.Put(zr)
		}, nil

	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(body); err != nil {
			brotliReaderPool.Put(br)
			return nil, nil, fmt.Errorf("brotli initialization error: %w", err)
		}
		return io.NopCloser(br), func() {
			_ = br.Reset(emptyReader)
			brotliReaderPool.Put(br)
		}, nil

	case "deflate":
		return inflate(body), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
	}
}

// inflate reads zlib-wrapped deflate, and falls back to raw deflate for
// servers that omit the zlib header.
func inflate(r io.Reader) io.ReadCloser {
	var head bytes.Buffer
	zr, err := zlib.NewReader(io.TeeReader(r, &head))
	if err == nil {
		return zr
	}
	return flate.NewReader(io.MultiReader(bytes.NewReader(head.Bytes()), r))
}
