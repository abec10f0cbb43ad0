package supervisor

import _ "embed"

// WorkerScript is the Python program every launcher hands to the sandbox
// interpreter. It is embedded so the deployed binary is self-contained and
// the supervisor and its worker can never version-skew.
//
//go:embed worker.py
var WorkerScript string
