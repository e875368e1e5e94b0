package models

import "time"

type Session struct {
	ID              string    `json:"id"`
	User            Author    `json:"user"`
	BackgroundColor string    `json:"background_color,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}
