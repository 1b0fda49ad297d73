package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// defaultCompressMin is below the size of a typical session-details body,
// so short acknowledgements go out uncompressed.
const defaultCompressMin = 1024

// brotliWriter holds the body back until it reaches min bytes; only then
// does it commit to Content-Encoding: br.
type brotliWriter struct {
	gin.ResponseWriter
	quality int
	min     int
	buf     []byte
	br      *brotli.Writer
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	if w.br != nil {
		return w.br.Write(data)
	}
	w.buf = append(w.buf, data...)
	if len(w.buf) < w.min {
		return len(data), nil
	}

	h := w.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	w.br = brotli.NewWriterLevel(w.ResponseWriter, w.quality)
	if _, err := w.br.Write(w.buf); err != nil {
		return 0, err
	}
	w.buf = nil
	return len(data), nil
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// finish sends a short body as is, or closes the brotli stream.
func (w *brotliWriter) finish() error {
	if w.br != nil {
		return w.br.Close()
	}
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf)
	return err
}

// Brotli compresses JSON responses for clients that send
// Accept-Encoding: br. Bodies under minLength are left alone; zero uses the
// default. WebSocket upgrades pass through untouched.
func Brotli(quality, minLength int) gin.HandlerFunc {
	if quality < brotli.BestSpeed || quality > brotli.BestCompression {
		quality = brotli.DefaultCompression
	}
	if minLength <= 0 {
		minLength = defaultCompressMin
	}

	return func(c *gin.Context) {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{ResponseWriter: c.Writer, quality: quality, min: minLength}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
