package version

// CurrentCommit is set at build time with -ldflags "-X github.com/subscription-escrow/escrowdex/version.CurrentCommit=..."
var CurrentCommit string

const BuildVersion = "v0.1.0"

func String() string {
	if CurrentCommit == "" {
		return BuildVersion
	}
	return BuildVersion + "+git." + CurrentCommit
}
