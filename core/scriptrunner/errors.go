package scriptrunner

import "errors"

var (
	// ErrScriptNil is returned when NewFuncRunner is called without a script.
	ErrScriptNil = errors.New("scriptrunner: script is nil")
)
