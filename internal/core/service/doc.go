// Package service orchestrates the periodic upkeep of the usage stats
// database.
//
// MaintenanceService runs retention pruning, daily checkin and backups into
// the vault on independent intervals, and restores archived backups. Its
// dependencies are interfaces so tests can substitute them.
package service
