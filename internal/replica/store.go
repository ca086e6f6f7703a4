// Package replica is the replicated key-value record store shared by every
// instance of a scene. Records are grouped by a stable numeric channel per
// logical component; every write produces a change notification.
package replica

import (
	"context"
	"errors"
	"sort"
)

// Channel is the stable sync id of one logical component.
type Channel uint16

const (
	ChannelActivities    Channel = 1
	ChannelPlayerState   Channel = 2
	ChannelMessageBus    Channel = 3
	ChannelCustomization Channel = 4
	ChannelPlayers       Channel = 5
	ChannelVotingDoors   Channel = 6
	ChannelPoll          Channel = 10
	ChannelSurvey        Channel = 11
	ChannelZonePoll      Channel = 12
	ChannelQA            Channel = 13
	ChannelQuestion      Channel = 14
)

var (
	// ErrNotFound is returned by Get when the record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSkipUpdate is returned by an UpdateFunc to leave the record untouched.
	ErrSkipUpdate = errors.New("update skipped")
)

// UpdateFunc computes the next encoded value of a record from the current one.
// old is nil when exists is false.
type UpdateFunc func(old []byte, exists bool) ([]byte, error)

// Entry is one stored record.
type Entry struct {
	ID   string
	Data []byte
}

// Change describes a write. Data is nil when Deleted is true.
type Change struct {
	Channel Channel `json:"channel"`
	ID      string  `json:"id"`
	Data    []byte  `json:"data,omitempty"`
	Deleted bool    `json:"deleted,omitempty"`
}

// Store is the replicated record store. Update is an atomic read-modify-write;
// concurrent writes to the same record from different instances are otherwise
// last-write-wins.
type Store interface {
	Get(ctx context.Context, ch Channel, id string) ([]byte, error)
	List(ctx context.Context, ch Channel) ([]Entry, error)
	Put(ctx context.Context, ch Channel, id string, data []byte) error
	Update(ctx context.Context, ch Channel, id string, fn UpdateFunc) error
	Delete(ctx context.Context, ch Channel, id string) error
	DeleteAll(ctx context.Context, ch Channel) error
	Subscribe(ch Channel, fn func(Change)) (cancel func())
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
