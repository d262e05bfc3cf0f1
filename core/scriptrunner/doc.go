// Package scriptrunner provides a reference implementation of the
// runtime.ScriptRunner producer boundary.
//
// FuncRunner wraps a plain script function: the function runs once when the
// session starts and once for every incoming client event, producing output
// by enqueuing messages on the session handle. Each run ends with a
// script-finished message carrying the run's status, which is what drives
// generation advancement and message-cache eviction in the dispatch loop.
package scriptrunner
