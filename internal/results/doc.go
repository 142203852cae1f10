// Package results holds the matches the coordinator has collected and writes
// them out as a tab-separated log:
//
//	Hash	String	Time (ns)
//	0xc8a106e5	Hello, world!	123456789
//
// One line per match, in the order the coordinator recorded them. The time
// column is the finder's elapsed time since its own search started.
package results
