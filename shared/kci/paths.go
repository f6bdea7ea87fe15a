// shared/kci/paths.go
package kci

import (
	"path/filepath"
)

// File and directory names of the on-disk artifact tree.
const (
	// DefaultBasePath is where the artifact tree lives unless configured
	// otherwise.
	DefaultBasePath = "/var/www/images/kernel-ci"

	// BuildMetaFile is the per-build metadata file written by the build
	// farm.
	BuildMetaFile = "build.json"

	// Build log files stored next to the metadata.
	BuildLogFile        = "build.log"
	BuildErrorsFile     = "build-errors.log"
	BuildWarningsFile   = "build-warnings.log"
	BuildMismatchesFile = "build-mismatches.log"

	// DoneFile marks a kernel directory whose builds all finished.
	// Some trees upload it with a prefix instead, hence the glob.
	DoneFile        = ".done"
	DoneFilePattern = "*.done"

	// BootReportPattern globs the boot report files inside a lab
	// directory.
	BootReportPattern = "boot-*.json"
)

// BuildDir returns the canonical directory holding a build's artifacts:
// <base>/<job>/<kernel>/<arch>-<config>. The config segment is either a
// resolved defconfig_full or a plain defconfig when no fragments were ever
// applied.
//
// All segments are assumed to have passed IsValidName at ingestion; BuildDir
// only composes the path, it performs no validation and no I/O.
func BuildDir(base, job, kernel, arch, config string) string {
	return filepath.Join(base, job, kernel, arch+"-"+config)
}

// BootDir returns the directory holding the boot reports labName produced
// for a build, nested under the build directory.
func BootDir(base, job, kernel, arch, config, labName string) string {
	return filepath.Join(BuildDir(base, job, kernel, arch, config), labName)
}
