package version

// This file contains the version information set during the CI builds using the
// github.com/karlmutch/duat go based tools

var (
	// GitHash contains the short github hash for the current build
	GitHash = "0000000"
	// BuildTime contains a time stamp string for the current build
	BuildTime = "0000-00-00_00:00:00-00:00"
)
