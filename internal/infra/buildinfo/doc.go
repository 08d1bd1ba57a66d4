// Package buildinfo exposes build information injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/usagestats-go/internal/infra/buildinfo.Version=v1.2.0 \
//	  -X github.com/yndnr/usagestats-go/internal/infra/buildinfo.Commit=abc123"
//
// The build fingerprint written to the store's version file is derived from
// these values; a change of fingerprint marks the first run of a new build.
package buildinfo
