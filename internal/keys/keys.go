// Package keys builds every Redis key used by the system. One
// constructor per entity type, so two entities can never collide on a
// key shape and nothing filters suffixes at read time.
package keys

import "fmt"

const prefix = "nestwatch"

func Worker(workerID string) string {
	return fmt.Sprintf("%s:worker:%s", prefix, workerID)
}

func WorkerIndex() string {
	return prefix + ":workers"
}

func RegistrationRequest(workerID string) string {
	return fmt.Sprintf("%s:registration:%s", prefix, workerID)
}

func RegistrationIndex() string {
	return prefix + ":registrations"
}

func RegionChangeRequest(requestID string) string {
	return fmt.Sprintf("%s:region-change:%s", prefix, requestID)
}

func RegionChangeIndex() string {
	return prefix + ":region-changes"
}

func ServiceConfig(serviceID string) string {
	return fmt.Sprintf("%s:service:%s:config", prefix, serviceID)
}

func ServiceConfigIndex() string {
	return prefix + ":services"
}

func ServiceStatus(serviceID string) string {
	return fmt.Sprintf("%s:service:%s:status", prefix, serviceID)
}

// RegionStamp holds the last applied result timestamp for one
// (service, region) slot; the compare-and-set lives on this key.
func RegionStamp(serviceID, regionID string) string {
	return fmt.Sprintf("%s:service:%s:region:%s:stamp", prefix, serviceID, regionID)
}

func Maintenance(serviceID string) string {
	return fmt.Sprintf("%s:service:%s:maintenance", prefix, serviceID)
}

func PointsConfig() string {
	return prefix + ":points:config"
}

// PointsStats holds the rolling per-worker counters (checks, failures,
// streak) the scoring multipliers derive from.
func PointsStats(workerID string) string {
	return fmt.Sprintf("%s:points:stats:%s", prefix, workerID)
}

func Leaderboard() string {
	return prefix + ":points:leaderboard"
}

func PeriodLeaderboard() string {
	return prefix + ":points:leaderboard:period"
}

// RealtimeChannel is the per-nest pub/sub channel status deltas fan
// out on.
func RealtimeChannel(nestID string) string {
	return fmt.Sprintf("%s:realtime:%s", prefix, nestID)
}

// Stream names for the message fabric.

func CommandStream() string {
	return prefix + ":fabric:commands"
}

func WorkerCommandStream(workerID string) string {
	return fmt.Sprintf("%s:fabric:commands:worker:%s", prefix, workerID)
}

func ResultStream() string {
	return prefix + ":fabric:results"
}

func HeartbeatStream() string {
	return prefix + ":fabric:heartbeats"
}

func DeadLetterStream() string {
	return prefix + ":fabric:dlq"
}
