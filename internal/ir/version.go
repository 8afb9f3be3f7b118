package ir

// IRVersion is stamped on every run row and on compile output. Bump it when
// a change to these types alters canonical JSON, and with it the
// content-addressed IDs of recorded runs.
const IRVersion = "1"

// EngineVersion is the pipekit runner version recorded with each run.
const EngineVersion = "0.1.0"
