package version

// Version is overridden at build time with -ldflags "-X rtinfer/internal/shared/version.Version=...".
var Version = "dev"
