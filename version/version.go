package version

// Version is set at build time from the repository tag.
var Version = "0.0.0"
