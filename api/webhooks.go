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
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/huglink/huglink/internal/apierror"
	"github.com/huglink/huglink/internal/guard"
)

// Webhook admission headers.
const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
	IDHeader        = "X-Id"
)

// ReceiveWebhook runs the admission pipeline on an inbound webhook delivery.
// The guard is a hard gate: nothing past this handler sees a request that
// failed a check. The raw body bytes go into signature verification exactly
// as received.
func (a Api) ReceiveWebhook(c *gin.Context) {
	integrationKey, passed := c.Params.Get("integration")
	if !passed {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "integration is required. pass key in the route /webhooks/:integration", nil))
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "failed to read request body", nil))
		return
	}

	err = a.deps.Guard.Admit(
		c.Request.Context(),
		integrationKey,
		rawBody,
		c.GetHeader(SignatureHeader),
		c.GetHeader(TimestampHeader),
		c.GetHeader(IDHeader),
	)
	if err != nil {
		status, code, message := admissionFailure(err)
		logrus.WithFields(logrus.Fields{
			"integration": integrationKey,
			"status":      status,
		}).Warn("webhook rejected: ", message)
		c.JSON(status, apierror.NewAPIError(code, message, nil))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func admissionFailure(err error) (int, apierror.ErrorCode, string) {
	switch {
	case errors.Is(err, guard.ErrMissingHeaders):
		return http.StatusBadRequest, apierror.ErrBadRequest, "missing or malformed webhook headers"
	case errors.Is(err, guard.ErrStaleTimestamp):
		return http.StatusPreconditionFailed, apierror.ErrStaleTimestamp, "webhook timestamp outside the accepted window"
	case errors.Is(err, guard.ErrUnknownIntegration):
		return http.StatusNotFound, apierror.ErrNotFound, "unknown or inactive integration"
	case errors.Is(err, guard.ErrReplay):
		return http.StatusPreconditionFailed, apierror.ErrReplayDetected, "webhook event already processed"
	case errors.Is(err, guard.ErrBadSignature):
		return http.StatusForbidden, apierror.ErrInvalidSignature, "webhook signature verification failed"
	default:
		return http.StatusInternalServerError, apierror.ErrInternalServer, "webhook admission failed"
	}
}
