package domain

import "time"

// HealthStatus is the state recorded in service_health.
type HealthStatus string

const (
	HealthOK      HealthStatus = "ok"
	HealthWarn    HealthStatus = "warn"
	HealthError   HealthStatus = "error"
	HealthPending HealthStatus = "pending"
)

// LogLevel is the level recorded in health_logs.
type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ServiceHealth is one row of service_health.
type ServiceHealth struct {
	ServiceName string       `json:"service_name"`
	Status      HealthStatus `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	LastSeen    time.Time    `json:"last_seen"`
}

// HealthLog is one row of health_logs.
type HealthLog struct {
	ID          int64     `json:"id"`
	ServiceName string    `json:"service_name"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
