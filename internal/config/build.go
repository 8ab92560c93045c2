package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X alarmrelay/internal/config.version=1.2.3 \
//	    -X alarmrelay/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// UserAgent appends the build version to product, e.g. "AlarmRelay/1.0 (v1.4.2)".
func (b BuildInfo) UserAgent(product string) string {
	if b.Version == "" {
		return product
	}
	return product + " (" + b.Version + ")"
}
