// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxEmitBodySize bounds the emit request body. Events are small; anything
// beyond this is malformed or hostile.
const maxEmitBodySize = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// EmitRequest is the body of POST /internal/emit. The event field holds a
// complete wire frame, type discriminant included, exactly as it would go
// down a socket.
type EmitRequest struct {
	// ReceiverID targets a single user. Required unless broadcasting.
	ReceiverID string `json:"receiverId" validate:"required_without=Broadcast"`

	// Broadcast sends the event to every connected user.
	Broadcast bool `json:"broadcast"`

	// Event is the raw event frame to relay.
	Event json.RawMessage `json:"event" validate:"required"`
}

// decodeAndValidate reads and validates a JSON request body into dst.
func decodeAndValidate(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxEmitBodySize)
	defer body.Close()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("validation failed: %w", verrs)
		}
		return err
	}
	return nil
}

// validationDetails flattens validator errors into field/constraint pairs
// for the error envelope.
func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{
			"field":      fe.Field(),
			"constraint": fe.Tag(),
		})
	}
	return details
}
