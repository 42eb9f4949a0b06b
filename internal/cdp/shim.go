package cdp

import _ "embed"

//go:embed shim.js
var shimSource string
