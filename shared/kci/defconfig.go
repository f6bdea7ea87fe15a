// shared/kci/defconfig.go
package kci

import (
	"log"
	"strings"

	"kcibuild/shared/model"
)

// Kconfig fragment files follow the frag-<tag>.config convention.
const (
	fragmentPrefix = "frag-"
	fragmentSuffix = ".config"
)

// DefconfigFull computes the canonical full configuration name of a build
// from the values available in its metadata, in decreasing order of trust:
//
//  1. No defconfig_full and no kconfig_fragments: the defconfig is the full
//     configuration, nothing was applied on top of it.
//  2. An explicit defconfig_full was reported upstream: it is authoritative
//     and returned unchanged.
//  3. Only kconfig_fragments is set: the value is extrapolated from the
//     fragment file name and cross-checked against the directory name the
//     build was found in (ARCH-DEFCONFIG[+FRAGMENT]).
//
// Absent values are empty strings. The function always returns a usable
// name; in the worst case the plain defconfig. It assumes defconfig itself
// already passed IsValidName.
func DefconfigFull(discoveryDir, defconfig, defconfigFull, kconfigFragments string) string {
	if defconfigFull == "" && kconfigFragments == "" {
		return defconfig
	}
	if defconfigFull != "" {
		return defconfigFull
	}

	fromFragments := defconfigFromFragments(kconfigFragments, defconfig)
	fromDirname := defconfigFromDirname(discoveryDir)

	// The fragment-derived name is the one the rest of the pipeline keys
	// on. When the directory name disagrees with both it and the plain
	// defconfig, keep the fragment-derived name anyway and leave a trace:
	// known trees hit this with stale directory names and renaming the
	// build here would orphan its boot reports.
	if fromDirname != "" && fromDirname != fromFragments && fromDirname != defconfig {
		log.Printf(
			"defconfig_full mismatch in %q: directory suggests %q, keeping %q",
			discoveryDir, fromDirname, fromFragments)
	}

	return fromFragments
}

// defconfigFromFragments extrapolates the full configuration name from a
// kconfig fragments file name. A frag-<tag>.config file applied on top of a
// defconfig yields <defconfig>+<tag>; any other fragment value cannot be
// used and the plain defconfig is returned.
func defconfigFromFragments(kconfigFragments, defconfig string) string {
	if !strings.HasPrefix(kconfigFragments, fragmentPrefix) ||
		!strings.HasSuffix(kconfigFragments, fragmentSuffix) {
		return defconfig
	}
	tag := strings.TrimSuffix(
		strings.TrimPrefix(kconfigFragments, fragmentPrefix), fragmentSuffix)
	return defconfig + "+" + tag
}

// defconfigFromDirname extrapolates the full configuration name from the
// directory a build was discovered in. Build directories are named
// ARCH-DEFCONFIG[+FRAGMENT]; the first known architecture found in the name
// is dropped together with its trailing dash. Returns the empty string when
// no known architecture appears in the name.
func defconfigFromDirname(dirname string) string {
	for _, arch := range model.ValidArchitectures {
		if strings.Contains(dirname, arch) {
			return strings.Replace(dirname, arch+"-", "", 1)
		}
	}
	return ""
}
