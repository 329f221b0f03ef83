package keel

// Version is the release of keel, set at build time with
// -ldflags "-X github.com/aretw0/keel.Version=...".
var Version = "0.1.0-dev"
