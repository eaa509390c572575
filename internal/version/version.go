package version

// Current is the release version reported by the CLI and the readiness endpoint.
const Current = "0.3.0"
