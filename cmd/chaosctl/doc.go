// Package main is chaosctl, the command line client for the chaos admin API.
//
// Usage:
//
//	chaosctl status
//	chaosctl enable
//	chaosctl latency 500
//	chaosctl errors 0.3
//	chaosctl disable
//	chaosctl health
//	chaosctl slo
//
// The server address comes from --addr, then CHAOSCTL_ADDR, then
// http://localhost:3000. Add --json for machine readable output.
package main
