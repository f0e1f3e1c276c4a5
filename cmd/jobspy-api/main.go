// Package main provides the entry point for the jobspy API.
//
// Usage:
//
//	jobspy-api serve [--config configs/jobspy.ini]
//	jobspy-api refresh
//
// See --help for all available options.
package main

func main() {
	Execute()
}
