// shared/model/job.go
package model

import (
	"time"
)

// Job groups all the builds of one kernel tree revision.
type Job struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	Kernel      string    `json:"kernel"`
	Status      string    `json:"status"`
	GitBranch   string    `json:"git_branch,omitempty"`
	GitCommit   string    `json:"git_commit,omitempty"`
	GitDescribe string    `json:"git_describe,omitempty"`
	GitURL      string    `json:"git_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Name returns the unique job document name, job-kernel.
func (j *Job) Name() string {
	return j.Job + "-" + j.Kernel
}
