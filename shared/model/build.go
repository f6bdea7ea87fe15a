// shared/model/build.go
package model

import (
	"time"
)

// Job and build status values.
const (
	BuildingStatus = "BUILDING"
	FailStatus     = "FAIL"
	PassStatus     = "PASS"
	UnknownStatus  = "UNKNOWN"
)

// ValidArchitectures is the fixed set of CPU architectures a build can be
// made for. The order matters: directory names are scanned against it front
// to back when extrapolating a full configuration name.
var ValidArchitectures = []string{
	"arm",
	"arm64",
	"mips",
	"x86",
}

// IsValidArchitecture reports whether arch is one of the supported
// architectures.
func IsValidArchitecture(arch string) bool {
	for _, a := range ValidArchitectures {
		if a == arch {
			return true
		}
	}
	return false
}

// Build is one build of a kernel tree: a (job, kernel, defconfig_full, arch)
// tuple plus the metadata parsed from its build.json file. It is constructed
// from incoming report data and never mutated after import.
type Build struct {
	ID               string    `json:"id"`
	JobID            string    `json:"job_id,omitempty"`
	Job              string    `json:"job"`
	Kernel           string    `json:"kernel"`
	Arch             string    `json:"arch"`
	Defconfig        string    `json:"defconfig"`
	DefconfigFull    string    `json:"defconfig_full,omitempty"`
	KconfigFragments string    `json:"kconfig_fragments,omitempty"`
	Status           string    `json:"status"`
	Dirname          string    `json:"dirname,omitempty"`
	GitBranch        string    `json:"git_branch,omitempty"`
	GitCommit        string    `json:"git_commit,omitempty"`
	GitDescribe      string    `json:"git_describe,omitempty"`
	GitURL           string    `json:"git_url,omitempty"`
	BuildLog         string    `json:"build_log,omitempty"`
	BuildTime        float64   `json:"build_time,omitempty"`
	BuildErrors      int       `json:"build_errors,omitempty"`
	BuildWarnings    int       `json:"build_warnings,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConfigName returns the configuration segment used in the build's artifact
// directory name: the resolved defconfig_full when one is set, the plain
// defconfig otherwise.
func (b *Build) ConfigName() string {
	if b.DefconfigFull != "" {
		return b.DefconfigFull
	}
	return b.Defconfig
}
