package models

// ZonePoll is a spatial voting activity record. ZoneCounts is parallel to Options
// and holds the occupancy sampled on the last tick, not an accumulated total.
type ZonePoll struct {
	ActivityBase
	PollID     string   `json:"poll_id"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	ZoneCounts []int    `json:"zone_counts"`
	StartTime  int64    `json:"start_time"`
}

// Vec3 is a world-space position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// VotingDoors is the replicated open/closed state of the four voting doors,
// indexed by door number minus one.
type VotingDoors struct {
	Open [4]bool `json:"open"`
}
