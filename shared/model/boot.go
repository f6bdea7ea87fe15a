// shared/model/boot.go
package model

import (
	"time"
)

// Boot is one boot test of a build on a board, reported by a lab. Boot
// reports live under <build dir>/<lab_name> on the file system.
type Boot struct {
	ID            string    `json:"id"`
	BuildID       string    `json:"build_id,omitempty"`
	JobID         string    `json:"job_id,omitempty"`
	Board         string    `json:"board"`
	Job           string    `json:"job"`
	Kernel        string    `json:"kernel"`
	Arch          string    `json:"arch"`
	DefconfigFull string    `json:"defconfig_full"`
	LabName       string    `json:"lab_name"`
	Status        string    `json:"status"`
	BootLog       string    `json:"boot_log,omitempty"`
	BootTime      float64   `json:"boot_time,omitempty"`
	Warnings      int       `json:"warnings,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
