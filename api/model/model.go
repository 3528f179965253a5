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

// Package model holds the API request shapes and their validation rules.
package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/huglink/huglink/model"
)

// RegisterIntegration is the body of POST /integrations.
type RegisterIntegration struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

func (r RegisterIntegration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Secret, validation.Required, validation.Length(16, 256)),
		validation.Field(&r.Key, validation.Length(0, 128)),
	)
}

func (r RegisterIntegration) ToIntegration() *model.Integration {
	return &model.Integration{
		Key:    r.Key,
		Name:   r.Name,
		Secret: r.Secret,
		Active: true,
	}
}

// RegisterDeviceToken is the body of POST /device-tokens.
type RegisterDeviceToken struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (r RegisterDeviceToken) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Platform, validation.Required, validation.In("ios", "android")),
	)
}

func (r RegisterDeviceToken) ToDeviceToken() *model.DeviceToken {
	return &model.DeviceToken{
		UserID:   r.UserID,
		Token:    r.Token,
		Platform: r.Platform,
		Active:   true,
	}
}

// SendHug is the body of POST /hugs. The write lands as an outbox record;
// delivery happens asynchronously.
type SendHug struct {
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	RecipientID string `json:"recipient_id"`
	PatternID   string `json:"pattern_id"`
}

func (r SendHug) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SenderID, validation.Required),
		validation.Field(&r.RecipientID, validation.Required),
	)
}

func (r SendHug) ToOutboxRecord(hugID string) *model.OutboxRecord {
	return model.NewOutboxRecord(model.EventHugSent, map[string]interface{}{
		"hug_id":       hugID,
		"sender_id":    r.SenderID,
		"sender_name":  r.SenderName,
		"recipient_id": r.RecipientID,
		"pattern_id":   r.PatternID,
	})
}

// SharePattern is the body of POST /patterns/share.
type SharePattern struct {
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	RecipientID string `json:"recipient_id"`
	PatternID   string `json:"pattern_id"`
	PatternName string `json:"pattern_name"`
}

func (r SharePattern) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SenderID, validation.Required),
		validation.Field(&r.RecipientID, validation.Required),
		validation.Field(&r.PatternID, validation.Required),
	)
}

func (r SharePattern) ToOutboxRecord() *model.OutboxRecord {
	return model.NewOutboxRecord(model.EventPatternShared, map[string]interface{}{
		"sender_id":    r.SenderID,
		"sender_name":  r.SenderName,
		"recipient_id": r.RecipientID,
		"pattern_id":   r.PatternID,
		"pattern_name": r.PatternName,
	})
}
