package common

// PackageName is the metrics namespace and default service tag.
const PackageName = "storage_redundancy_engine"

// Version is set at build time via -ldflags.
var Version = "dev"
