/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/huglink/huglink/internal/idempotency"
)

// bodyCaptureWriter tees the response body so a completed response can be
// stored for replay.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response for a repeated unsafe
// request carrying an Idempotency-Key, and captures first responses for
// later replay. Store failures are logged and ignored: reliability
// bookkeeping must never fail the business request it wraps.
func IdempotencyMiddleware(store *idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotency.HeaderKey)
		if key == "" || !idempotency.UnsafeMethods[c.Request.Method] {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logrus.WithError(err).Error("failed to read request body for idempotency check")
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := idempotency.Fingerprint(key, c.Request.Method, c.FullPath(), body)

		entry, found, err := store.Lookup(c.Request.Context(), fingerprint)
		if err != nil {
			logrus.WithError(err).Error("idempotency lookup failed, executing handler")
		}
		if found {
			c.Header("X-Idempotent-Replayed", "true")
			c.Data(entry.Status, "application/json", entry.Body)
			c.Abort()
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		if err := store.Record(c.Request.Context(), fingerprint, writer.Status(), writer.body.Bytes()); err != nil {
			logrus.WithError(err).Error("failed to record idempotent response")
		}
	}
}
