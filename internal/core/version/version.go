package version

// Version is overridden at build time with
// -ldflags "-X github.com/guiyumin/clipget/internal/core/version.Version=x.y.z"
var Version = "0.3.0"
