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

	model2 "github.com/huglink/huglink/api/model"
	"github.com/huglink/huglink/internal/apierror"
)

func (a Api) RegisterIntegration(c *gin.Context) {
	var req model2.RegisterIntegration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "invalid request body", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "validation failed", err.Error()))
		return
	}

	integration := req.ToIntegration()
	if err := a.deps.Integrations.RegisterIntegration(c.Request.Context(), integration); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to register integration", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, integration)
}

func (a Api) GetAllIntegrations(c *gin.Context) {
	integrations, err := a.deps.Integrations.ListIntegrations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to list integrations", err.Error()))
		return
	}
	c.JSON(http.StatusOK, integrations)
}

func (a Api) DeactivateIntegration(c *gin.Context) {
	key, passed := c.Params.Get("key")
	if !passed {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "integration key is required", nil))
		return
	}

	integration, err := a.deps.Integrations.GetIntegration(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to load integration", err.Error()))
		return
	}
	if integration == nil {
		c.JSON(http.StatusNotFound, apierror.NewAPIError(apierror.ErrNotFound, "integration not found", nil))
		return
	}

	if err := a.deps.Integrations.DeactivateIntegration(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to deactivate integration", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "active": false})
}

func (a Api) RegisterDeviceToken(c *gin.Context) {
	var req model2.RegisterDeviceToken
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "invalid request body", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "validation failed", err.Error()))
		return
	}

	token := req.ToDeviceToken()
	if err := a.deps.Tokens.RegisterToken(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to register device token", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (a Api) DeactivateDeviceToken(c *gin.Context) {
	userID, _ := c.Params.Get("user_id")
	token, _ := c.Params.Get("token")
	if userID == "" || token == "" {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrBadRequest, "user_id and token are required", nil))
		return
	}

	if err := a.deps.Tokens.DeactivateToken(c.Request.Context(), userID, token); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "failed to deactivate device token", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "token": token, "active": false})
}
