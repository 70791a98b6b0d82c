// Package engine runs a round of the bomb panel.
//
// ARCHITECTURAL RULE: renderers and input never touch the board or the pool
// directly. They read snapshots and send Commands; the Dispatcher is the only
// goroutine that turns commands into allocations.
//
// A Round owns one Board, one worker Pool and four background goroutines:
// the Dispatcher, the Watcher, the Generator and the round clock.
package engine
