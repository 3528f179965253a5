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
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/huglink/huglink/internal/apierror"
	"github.com/huglink/huglink/internal/ratelimit"
)

// QuotaMiddleware enforces the per-caller fixed-window quota. Callers are
// identified by API key when present, client IP otherwise. Quota headers go
// out on every response so clients can self-throttle before hitting 429.
func QuotaMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.Allow(c.Request.Context(), callerIdentity(c))
		if err != nil {
			// The quota store being down must not take write traffic down
			// with it.
			logrus.WithError(err).Error("rate limit check failed, admitting request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(result.RetryAfter))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.NewAPIError(
				apierror.ErrRateLimited,
				fmt.Sprintf("Rate limit exceeded. Retry after %d seconds", result.RetryAfter),
				nil,
			))
			return
		}
		c.Next()
	}
}

func callerIdentity(c *gin.Context) string {
	if key := c.GetHeader(KeyHeader); key != "" {
		return "key:" + key
	}
	return "ip:" + c.ClientIP()
}
