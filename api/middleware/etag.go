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
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

type etagWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *etagWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *etagWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *etagWriter) WriteHeader(status int) {
	// deferred until the body hash is known
	w.status = status
}

// ETagMiddleware hashes successful GET responses into a strong ETag and
// answers If-None-Match revalidations with 304 and an empty body.
func ETagMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		writer := &etagWriter{ResponseWriter: c.Writer, status: http.StatusOK}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter

		if writer.status != http.StatusOK {
			c.Writer.WriteHeader(writer.status)
			_, _ = c.Writer.Write(writer.body.Bytes())
			return
		}

		sum := sha256.Sum256(writer.body.Bytes())
		etag := `"` + hex.EncodeToString(sum[:16]) + `"`
		c.Header("ETag", etag)

		if c.GetHeader("If-None-Match") == etag {
			c.Writer.WriteHeader(http.StatusNotModified)
			return
		}

		c.Writer.WriteHeader(writer.status)
		_, _ = c.Writer.Write(writer.body.Bytes())
	}
}
