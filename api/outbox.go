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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/huglink/huglink/api/model"
	"github.com/huglink/huglink/internal/apierror"
	"github.com/huglink/huglink/model"
)

// SendHug records a hug as a pending outbox record and hands it to the
// worker queue. The response is the durable record, not the delivery: the
// push notification happens asynchronously.
func (a Api) SendHug(c *gin.Context) {
	var req model2.SendHug
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "invalid request body", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "validation failed", err.Error()))
		return
	}

	record := req.ToOutboxRecord(model.GenerateUUIDWithSuffix("hug"))
	a.queueRecord(c, record)
}

// SharePattern records a pattern share the same way SendHug records hugs.
func (a Api) SharePattern(c *gin.Context) {
	var req model2.SharePattern
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "invalid request body", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "validation failed", err.Error()))
		return
	}

	a.queueRecord(c, req.ToOutboxRecord())
}

func (a Api) queueRecord(c *gin.Context, record *model.OutboxRecord) {
	if err := a.deps.Outbox.CreateRecord(c.Request.Context(), record); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to persist outbox record", err.Error()))
		return
	}

	if a.deps.Enqueuer != nil {
		if err := a.deps.Enqueuer.EnqueueOutbox(c.Request.Context(), record); err != nil {
			// The record is durable; the schedule poll will pick it up.
			logrus.WithError(err).WithField("record", record.ID).Error("failed to enqueue outbox record")
		}
	}

	c.JSON(http.StatusCreated, record)
}

func (a Api) GetOutboxRecord(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "record id is required", nil))
		return
	}

	record, err := a.deps.Outbox.GetRecord(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to load outbox record", err.Error()))
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, apierror.NewAPIError(apierror.ErrNotFound, "outbox record not found", nil))
		return
	}
	c.JSON(http.StatusOK, record)
}

// RecoverOutbox triggers an immediate sweep of records stuck in processing.
func (a Api) RecoverOutbox(c *gin.Context) {
	if a.deps.Recovery == nil {
		c.JSON(http.StatusNotFound, apierror.NewAPIError(apierror.ErrNotFound, "recovery processor not running", nil))
		return
	}
	recovered := a.deps.Recovery.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
