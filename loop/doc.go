// Package loop provides the single-threaded scheduler every construct in tick runs on.
//
// A Loop processes work in turns. Work scheduled with NextTick during a turn
// runs in the following turn, never in the current one, so a long chain that
// yields through NextTick has a bounded stack.
//
// Only the goroutine calling Run executes tasks. Other goroutines hand work back
// to the loop with Post, or through Go and After which keep the loop alive
// until their callback has been delivered.
package loop
