// Package domain defines worship session records, participant roles, and the
// rules that decide who may steer a session and whose display follows it.
package domain
