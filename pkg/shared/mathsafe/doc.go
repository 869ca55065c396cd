// Package mathsafe implements the safe math evaluator Stage B uses to turn
// a ToolSpec's performance-profile formula strings (time_ms, cost,
// complexity) into numbers, without ever giving a formula string the
// power to do anything but arithmetic over a fixed variable set.
//
// Grammar (see SPEC_FULL.md §4.4 step 3): numeric literals, named
// variables from a fixed allow-list, the operators + - * / // % and unary
// minus, comparison operators for constraint expressions, and calls to a
// whitelisted function set: log, sqrt, min, max, abs, ceil, floor, pow.
// No attribute access, no imports, no calls outside the whitelist.
//
// This package is implemented purely on the standard library; see
// DESIGN.md for why no third-party expression evaluator in the retrieved
// example pack was adopted instead.
package mathsafe
