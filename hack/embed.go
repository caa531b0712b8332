package hack

import _ "embed"

// SystemdUnitTemplate is the service unit written by "blind install".
// "/path/to/blind" is replaced with the installed executable.
//
//go:embed blind.service
var SystemdUnitTemplate string
