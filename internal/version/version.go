package version

// Version is stamped by the release script via -ldflags.
var Version = "dev"
