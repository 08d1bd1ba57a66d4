// Package command provides the command definitions of the usagestats CLI.
//
// Every command except serve opens the bucket database, runs one operation
// and exits. serve runs the maintenance loops and the metrics endpoint
// until interrupted.
package command
