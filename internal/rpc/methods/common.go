// Package methods contains RPC method handlers for the application.
package methods

import "github.com/google/uuid"

// RoomIDParam is a struct for room ID parameter.
type RoomIDParam struct {
	RoomID uuid.UUID `json:"roomId"`
}
